package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/postback"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// PostbackQueue 回传队列名称
	PostbackQueue = constants.QueuePostback

	defaultHealthTimeout = 300 * time.Millisecond
	taskTimeoutMargin    = 5 * time.Minute
)

// ErrQueueDisabled 队列未启用
var ErrQueueDisabled = errors.New("queue disabled")

// Stats 持久队列统计
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Client 队列客户端封装
type Client struct {
	client        *asynq.Client
	inspector     *asynq.Inspector
	pinger        *redis.Client
	enabled       bool
	healthTimeout time.Duration
	retention     time.Duration
	taskTimeout   time.Duration
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false}, nil
	}
	opt := buildRedisOpt(cfg)
	pinger := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	healthTimeout := time.Duration(cfg.HealthTimeoutMs) * time.Millisecond
	if healthTimeout <= 0 {
		healthTimeout = defaultHealthTimeout
	}
	return &Client{
		client:        asynq.NewClient(opt),
		inspector:     asynq.NewInspector(opt),
		pinger:        pinger,
		enabled:       true,
		healthTimeout: healthTimeout,
		retention:     time.Duration(cfg.RetentionHours) * time.Hour,
		taskTimeout:   resolveTaskTimeout(cfg.TaskTimeoutMinutes),
	}, nil
}

// resolveTaskTimeout 任务执行上限不得短于单个配置的最坏重试耗时
func resolveTaskTimeout(minutes int) time.Duration {
	floor := postback.MaxRetryBudget() + taskTimeoutMargin
	configured := time.Duration(minutes) * time.Minute
	if configured < floor {
		return floor
	}
	return configured
}

// TaskTimeout 回传任务执行上限
func (c *Client) TaskTimeout() time.Duration {
	if c == nil {
		return 0
	}
	return c.taskTimeout
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Healthy 调用时探测 Redis 可用性
func (c *Client) Healthy(ctx context.Context) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	pingCtx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	if err := c.pinger.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("queue redis ping: %w", err)
	}
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	var errs []error
	errs = append(errs, c.client.Close())
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.pinger != nil {
		errs = append(errs, c.pinger.Close())
	}
	return errors.Join(errs...)
}

// EnqueuePostbackDelivery 推送回传投递任务；重试预算由配置自身控制，队列层不重试
func (c *Client) EnqueuePostbackDelivery(ctx context.Context, task postback.Task, delay time.Duration) error {
	if !c.Enabled() {
		return ErrQueueDisabled
	}
	if delay < 0 {
		delay = 0
	}
	asynqTask, err := NewPostbackDeliverTask(task)
	if err != nil {
		return err
	}
	options := []asynq.Option{
		asynq.Queue(PostbackQueue),
		asynq.MaxRetry(0),
		asynq.ProcessIn(delay),
		asynq.Timeout(c.taskTimeout),
	}
	if c.retention > 0 {
		options = append(options, asynq.Retention(c.retention))
	}
	_, err = c.client.EnqueueContext(ctx, asynqTask, options...)
	return err
}

// Stats 读取回传队列统计
func (c *Client) Stats() (Stats, error) {
	if !c.Enabled() || c.inspector == nil {
		return Stats{}, ErrQueueDisabled
	}
	info, err := c.inspector.GetQueueInfo(PostbackQueue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return Stats{}, nil
		}
		return Stats{}, err
	}
	return Stats{
		Waiting:   info.Pending + info.Scheduled + info.Retry,
		Active:    info.Active,
		Completed: info.Completed,
		Failed:    info.Archived,
	}, nil
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{PostbackQueue: 10, DefaultQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
