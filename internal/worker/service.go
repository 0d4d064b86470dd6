package worker

import (
	"context"
	"errors"
	"time"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	countersReportInterval = time.Minute
	shutdownTimeout        = 8 * time.Second
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	serverCfg.Logger = logger.Named("asynq")
	serverCfg.ShutdownTimeout = shutdownTimeout
	serverCfg.ErrorHandler = asynq.ErrorHandlerFunc(reportTaskError)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.Pipeline != nil {
		go s.runCountersReportLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.server.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reportTaskError 记录 handler 返回的错误（SkipRetry 的坏任务同样经过这里）
func reportTaskError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	taskID, _ := asynq.GetTaskID(ctx)
	logger.Named("worker").Warnw("worker_task_failed",
		"task_type", task.Type(),
		"task_id", taskID,
		"retried", retried,
		"max_retry", maxRetry,
		"error", err,
	)
}

func (s *Service) runCountersReportLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.Pipeline == nil {
		return
	}
	ticker := time.NewTicker(countersReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counters := s.consumer.Pipeline.Metrics().Snapshot()
			logger.Infow("worker_postback_counters",
				"processed", counters.Processed,
				"succeeded", counters.Succeeded,
				"failed", counters.Failed,
				"blocked_hard", counters.BlockedHard,
				"blocked_soft", counters.BlockedSoft,
			)
		}
	}
}
