package cache

import (
	"context"
	"testing"
	"time"

	"github.com/convtrack/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWithRedis(rdb, "test"), mr
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := New(nil)
	require.False(t, c.Enabled())
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.SetJSON(context.Background(), "k", 1, time.Minute))
	ok, err := c.GetJSON(context.Background(), "k", new(int))
	require.NoError(t, err)
	require.False(t, ok)

	release, acquired, err := c.TryLock(context.Background(), "x", time.Second)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, release(context.Background()))
}

func TestClickSnapshotRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	click := &models.Click{ClickID: "01HXYZ", OfferID: 3, Country: "US"}
	require.NoError(t, c.SetClick(ctx, click))
	require.True(t, mr.Exists("test:click:01HXYZ"))

	got, ok, err := c.GetClick(ctx, "01HXYZ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint(3), got.OfferID)
	require.Equal(t, "US", got.Country)

	_, ok, err = c.GetClick(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTryLockExclusiveUntilRelease(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	release, ok, err := c.TryLock(ctx, "pb:1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.TryLock(ctx, "pb:1", 30*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists("test:lock:pb:1"))

	_, ok, err = c.TryLock(ctx, "pb:1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}
