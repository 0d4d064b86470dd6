package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Postback PostbackConfig `mapstructure:"postback"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Level,
		Console:    c.Console,
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 管理接口令牌配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	Host            string         `mapstructure:"host"`
	Port            int            `mapstructure:"port"`
	Password        string         `mapstructure:"password"`
	DB              int            `mapstructure:"db"`
	Concurrency     int            `mapstructure:"concurrency"`
	Queues          map[string]int `mapstructure:"queues"`
	HealthTimeoutMs int            `mapstructure:"health_timeout_ms"`
	RetentionHours  int            `mapstructure:"retention_hours"`
	// TaskTimeoutMinutes 单个回传任务的执行上限，0 表示按重试预算上限推算
	TaskTimeoutMinutes int `mapstructure:"task_timeout_minutes"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	ClickRateLimit RateLimitConfig `mapstructure:"click_rate_limit"`
	EventRateLimit RateLimitConfig `mapstructure:"event_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// TrackingConfig 点击追踪配置
type TrackingConfig struct {
	Sub2AllowedKeys []string `mapstructure:"sub2_allowed_keys"`
	Sub2MaxPairs    int      `mapstructure:"sub2_max_pairs"`
	Sub2MaxLength   int      `mapstructure:"sub2_max_length"`
	ClickIDAttempts int      `mapstructure:"click_id_attempts"`
}

// PostbackConfig 回传投递配置
type PostbackConfig struct {
	SettlementDelaySeconds int    `mapstructure:"settlement_delay_seconds"` // refunded/chargeback 延迟
	DefaultDelaySeconds    int    `mapstructure:"default_delay_seconds"`
	MaxParallelProfiles    int    `mapstructure:"max_parallel_profiles"`
	DefaultRetries         int    `mapstructure:"default_retries"`
	DefaultTimeoutMs       int    `mapstructure:"default_timeout_ms"`
	DefaultBackoffBaseSec  int    `mapstructure:"default_backoff_base_sec"`
	ResponseBodyLimit      int    `mapstructure:"response_body_limit"`
	UserAgent              string `mapstructure:"user_agent"`
	DedupLockEnabled       bool   `mapstructure:"dedup_lock_enabled"`
	DedupLockTTLSeconds    int    `mapstructure:"dedup_lock_ttl_seconds"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Postback.SettlementDelaySeconds < 0 || c.Postback.DefaultDelaySeconds < 0 {
		return errors.New("postback delays must not be negative")
	}
	if c.Postback.MaxParallelProfiles < 0 {
		return errors.New("postback.max_parallel_profiles must not be negative")
	}
	if c.Tracking.Sub2MaxPairs < 0 || c.Tracking.Sub2MaxLength < 0 {
		return errors.New("tracking sub2 limits must not be negative")
	}
	if c.Tracking.Sub2MaxPairs > 0 && len(c.Tracking.Sub2AllowedKeys) == 0 {
		return errors.New("tracking.sub2_allowed_keys is empty")
	}
	if c.Queue.TaskTimeoutMinutes < 0 {
		return errors.New("queue.task_timeout_minutes must not be negative")
	}
	if c.Queue.Enabled && len(c.Queue.Queues) > 0 && c.Queue.Queues[constants.QueuePostback] <= 0 {
		return fmt.Errorf("queue.queues must give %q a positive weight", constants.QueuePostback)
	}
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}

// SetDefaults 注册默认配置
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "")
	v.SetDefault("log.console", false)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/convtrack.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ct")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 20)
	v.SetDefault("queue.queues", map[string]int{
		"postback": 10,
		"default":  1,
	})
	v.SetDefault("queue.health_timeout_ms", 300)
	v.SetDefault("queue.retention_hours", 24)
	v.SetDefault("queue.task_timeout_minutes", 0)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.click_rate_limit.window_seconds", 60)
	v.SetDefault("security.click_rate_limit.max_requests", 600)
	v.SetDefault("security.event_rate_limit.window_seconds", 60)
	v.SetDefault("security.event_rate_limit.max_requests", 1200)
	v.SetDefault("tracking.sub2_allowed_keys", []string{
		"geo", "dev", "os", "br", "src", "cmp", "cr", "pl", "lang", "age",
	})
	v.SetDefault("tracking.sub2_max_pairs", 10)
	v.SetDefault("tracking.sub2_max_length", 256)
	v.SetDefault("tracking.click_id_attempts", 3)
	v.SetDefault("postback.settlement_delay_seconds", 600)
	v.SetDefault("postback.default_delay_seconds", 5)
	v.SetDefault("postback.max_parallel_profiles", 8)
	v.SetDefault("postback.default_retries", 3)
	v.SetDefault("postback.default_timeout_ms", 5000)
	v.SetDefault("postback.default_backoff_base_sec", 2)
	v.SetDefault("postback.response_body_limit", 2048)
	v.SetDefault("postback.user_agent", "convtrack-postback/1.0")
	v.SetDefault("postback.dedup_lock_enabled", false)
	v.SetDefault("postback.dedup_lock_ttl_seconds", 120)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	SetDefaults(v)

	// 环境变量支持（例如 postback.default_retries -> POSTBACK_DEFAULT_RETRIES）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// Unmarshal 解析并校验配置
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
