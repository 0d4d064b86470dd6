package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// ReleaseFunc 释放锁
type ReleaseFunc func(ctx context.Context) error

// TryLock 尝试获取 SET NX 锁；缓存未启用时视为获取成功
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	if !c.Enabled() {
		return func(context.Context) error { return nil }, true, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	token, err := newLockToken()
	if err != nil {
		return nil, false, err
	}
	lockKey := c.Key(fmt.Sprintf("lock:%s", key))
	ok, err := c.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		_, err := releaseLockScript.Run(ctx, c.rdb, []string{lockKey}, token).Result()
		return err
	}
	return release, true, nil
}

func newLockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
