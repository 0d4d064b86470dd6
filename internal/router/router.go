package router

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/convtrack/internal/config"
	adminhandlers "github.com/convtrack/internal/http/handlers/admin"
	publichandlers "github.com/convtrack/internal/http/handlers/public"
	"github.com/convtrack/internal/logger"
	"github.com/convtrack/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

var errDatabaseUnavailable = errors.New("database is not configured")

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/管理分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisClient := c.Cache.Redis()
	clickRule := RateLimitRule{
		Prefix:        c.Cache.Key("rate:click"),
		WindowSeconds: cfg.Security.ClickRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.ClickRateLimit.MaxRequests,
		Message:       "too many clicks",
	}
	eventRule := RateLimitRule{
		Prefix:        c.Cache.Key("rate:event"),
		WindowSeconds: cfg.Security.EventRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.EventRateLimit.MaxRequests,
		Message:       "too many events",
	}
	webhookRule := eventRule
	webhookRule.Prefix = c.Cache.Key("rate:webhook")

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	metricsPath := strings.TrimSpace(cfg.Metrics.Path)
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Use(LoggerMiddleware(log, "/healthz", metricsPath))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 点击与第一方事件
		track := apiV1.Group("/track")
		{
			clickLimit := RateLimitMiddleware(redisClient, clickRule, KeyByIP)
			track.GET("/click", clickLimit, publicHandler.TrackClick)
			track.POST("/click", clickLimit, publicHandler.TrackClick)
			track.POST("/event", RateLimitMiddleware(redisClient, eventRule, KeyByIPAndJSONField("advertiser_id")), publicHandler.TrackEvent)
		}

		// 外部平台回调
		webhooks := apiV1.Group("/webhooks")
		webhooks.Use(RateLimitMiddleware(redisClient, webhookRule, KeyByParam("advertiser_id")))
		{
			webhooks.POST("/tracker/:advertiser_id", publicHandler.TrackerWebhook)
			webhooks.POST("/payment/:advertiser_id", publicHandler.PaymentWebhook)
		}

		// 管理接口（需鉴权）
		admin := apiV1.Group("/admin")
		admin.Use(OwnerJWTMiddleware(cfg.JWT.SecretKey))
		{
			admin.GET("/postback-profiles", adminHandler.GetPostbackProfiles)
			admin.POST("/postback-profiles", adminHandler.CreatePostbackProfile)
			admin.GET("/postback-profiles/:id", adminHandler.GetPostbackProfile)
			admin.PUT("/postback-profiles/:id", adminHandler.UpdatePostbackProfile)
			admin.DELETE("/postback-profiles/:id", adminHandler.DeletePostbackProfile)
			admin.GET("/postback-deliveries", adminHandler.GetPostbackDeliveries)
			admin.GET("/postback-queue/stats", adminHandler.GetPostbackQueueStats)
			admin.GET("/conversions/:id", adminHandler.GetConversion)
		}
	}

	// 健康检查
	r.GET("/healthz", healthHandler(c))

	if cfg.Metrics.Enabled && c.Registry != nil {
		r.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})))
	}

	return r
}

// healthHandler 数据库必须可用；缓存与队列异常只降级
func healthHandler(c *provider.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthCheckTimeout)
		defer cancel()

		checks := gin.H{}
		status := "ok"
		httpStatus := http.StatusOK

		if err := pingDB(reqCtx, c); err != nil {
			checks["database"] = err.Error()
			status = "down"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}

		if c.Cache.Enabled() {
			if err := c.Cache.Ping(reqCtx); err != nil {
				checks["redis"] = err.Error()
				if status == "ok" {
					status = "degraded"
				}
			} else {
				checks["redis"] = "ok"
			}
		}

		if c.QueueClient.Enabled() {
			if err := c.QueueClient.Healthy(reqCtx); err != nil {
				checks["queue"] = err.Error()
				if status == "ok" {
					status = "degraded"
				}
			} else {
				checks["queue"] = "ok"
			}
		} else {
			checks["queue"] = "inline"
		}

		ctx.JSON(httpStatus, gin.H{"status": status, "checks": checks})
	}
}

func pingDB(ctx context.Context, c *provider.Container) error {
	if c.DB == nil {
		return errDatabaseUnavailable
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
