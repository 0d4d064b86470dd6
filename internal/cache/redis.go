package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/convtrack/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "ct"

// Client Redis 客户端封装，由启动流程创建并显式传递
type Client struct {
	rdb    *redis.Client
	prefix string
}

// New 根据配置创建客户端；未启用时返回禁用状态的实例
func New(cfg *config.RedisConfig) *Client {
	if cfg == nil || !cfg.Enabled {
		return &Client{prefix: defaultPrefix}
	}
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithRedis(rdb, cfg.Prefix)
}

// NewWithRedis 使用已有连接创建客户端
func NewWithRedis(rdb *redis.Client, prefix string) *Client {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// Enabled 判断缓存是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Redis 获取底层 Redis 客户端
func (c *Client) Redis() *redis.Client {
	if !c.Enabled() {
		return nil
	}
	return c.rdb
}

// Ping 探测连接
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭连接
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

// GetJSON 获取 JSON 缓存
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, c.Key(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.Key(key), payload, ttl).Err()
}

// Del 删除缓存
func (c *Client) Del(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, c.Key(key)).Err()
}

// Key 拼接带前缀的 key
func (c *Client) Key(key string) string {
	prefix := defaultPrefix
	if c != nil && c.prefix != "" {
		prefix = c.prefix
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return prefix
	}
	return fmt.Sprintf("%s:%s", prefix, trimmed)
}
