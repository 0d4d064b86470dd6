package provider

import (
	"context"
	"errors"
	"time"

	"github.com/convtrack/internal/cache"
	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/postback"
	"github.com/convtrack/internal/queue"
	"github.com/convtrack/internal/repository"
	"github.com/convtrack/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	Cache       *cache.Client
	QueueClient *queue.Client
	Registry    *prometheus.Registry

	// Repositories
	ClickRepo            repository.ClickRepository
	ConversionRepo       repository.ConversionRepository
	PostbackProfileRepo  repository.PostbackProfileRepository
	PostbackDeliveryRepo repository.PostbackDeliveryRepository

	// Postback
	PostbackMetrics  *postback.Metrics
	PostbackPipeline *postback.Pipeline

	// Services
	ClickService           *service.ClickService
	ConversionService      *service.ConversionService
	PostbackProfileService *service.PostbackProfileService
	PostbackQueueService   *service.PostbackQueueService
}

// NewContainer 初始化容器；db 由调用方打开并负责关闭
func NewContainer(cfg *config.Config, db *gorm.DB) *Container {
	cacheClient := cache.New(&cfg.Redis)
	if cacheClient.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := cacheClient.Ping(ctx); err != nil {
			logger.Warnw("provider_init_redis_failed", "error", err)
		}
		cancel()
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Container{
		Config:      cfg,
		DB:          db,
		Cache:       cacheClient,
		QueueClient: queueClient,
		Registry:    registry,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化投递流水线
	c.initPostback()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	c.ClickRepo = repository.NewClickRepository(c.DB)
	c.ConversionRepo = repository.NewConversionRepository(c.DB)
	c.PostbackProfileRepo = repository.NewPostbackProfileRepository(c.DB)
	c.PostbackDeliveryRepo = repository.NewPostbackDeliveryRepository(c.DB)
}

func (c *Container) initPostback() {
	pbCfg := c.Config.Postback
	c.PostbackMetrics = postback.NewMetrics(c.Registry)

	opts := postback.DispatcherOptions{
		MaxParallel:      pbCfg.MaxParallelProfiles,
		DefaultRetries:   pbCfg.DefaultRetries,
		DefaultTimeoutMs: pbCfg.DefaultTimeoutMs,
		Metrics:          c.PostbackMetrics,
	}
	if pbCfg.DedupLockEnabled && c.Cache.Enabled() {
		opts.Locker = c.Cache
		opts.LockTTL = time.Duration(pbCfg.DedupLockTTLSeconds) * time.Second
	}
	sender := postback.NewHTTPSender(nil, pbCfg.UserAgent, pbCfg.ResponseBodyLimit)
	dispatcher := postback.NewDispatcher(postback.NewRenderer(), sender, c.PostbackDeliveryRepo, opts)
	c.PostbackPipeline = postback.NewPipeline(
		postback.NewMatcher(c.PostbackProfileRepo),
		postback.NewGate(),
		dispatcher,
		c.PostbackMetrics,
	)
}

func (c *Container) initServices() {
	c.ClickService = service.NewClickService(c.ClickRepo, c.Cache, service.NoopClickEnricher{}, c.Config.Tracking)

	var durable *service.DurableBackend
	if c.QueueClient.Enabled() {
		durable = service.NewDurableBackend(c.QueueClient)
	}
	c.PostbackQueueService = service.NewPostbackQueueService(
		durable,
		service.NewInlineBackend(c.PostbackPipeline),
		c.ClickService,
		c.Config.Postback,
	)
	c.ConversionService = service.NewConversionService(c.ConversionRepo, c.ClickService, c.PostbackQueueService)
	c.PostbackProfileService = service.NewPostbackProfileService(c.PostbackProfileRepo, c.PostbackDeliveryRepo, c.Config.Postback)
}

// Close 释放外部连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.QueueClient != nil {
		errs = append(errs, c.QueueClient.Close())
	}
	errs = append(errs, c.Cache.Close())
	return errors.Join(errs...)
}
