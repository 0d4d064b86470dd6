package app

import (
	"errors"
	"fmt"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/provider"
	"github.com/convtrack/internal/router"
	"github.com/convtrack/internal/worker"

	"gorm.io/gorm"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, db *gorm.DB, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if db == nil {
		return nil, errors.New("db is nil")
	}
	switch mode {
	case ModeAll, ModeAPI, ModeWorker:
	default:
		return nil, fmt.Errorf("unknown mode: %s", mode)
	}

	container := provider.NewContainer(cfg, db)

	var services []Service

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	// 初始化 Worker 服务；队列关闭时投递走内联通道，worker 无事可做
	if mode == ModeAll || mode == ModeWorker {
		if container.QueueClient.Enabled() {
			consumer := worker.NewConsumer(container)
			workerService, err := worker.NewService(&cfg.Queue, consumer)
			if err != nil {
				_ = container.Close()
				return nil, err
			}
			services = append(services, workerService)
		} else if mode == ModeWorker {
			_ = container.Close()
			return nil, errors.New("worker mode requires queue.enabled")
		}
	}

	if len(services) == 0 {
		_ = container.Close()
		return nil, errors.New("no services initialized (check mode and config)")
	}

	runner := NewRunner(services...)
	runner.OnShutdown(container.Close)
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.DB, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode, "queue_enabled", opts.Config.Queue.Enabled)
	return RunWithOptions(runner, opts)
}
