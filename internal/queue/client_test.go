package queue

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/convtrack/internal/config"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/postback"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func queueConfigFor(t *testing.T, addr string) *config.QueueConfig {
	t.Helper()
	host, portText, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)
	return &config.QueueConfig{Enabled: true, Host: host, Port: port, HealthTimeoutMs: 200}
}

func TestDisabledClient(t *testing.T) {
	c, err := NewClient(&config.QueueConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, c.Enabled())
	require.ErrorIs(t, c.Healthy(context.Background()), ErrQueueDisabled)
	require.ErrorIs(t, c.EnqueuePostbackDelivery(context.Background(), postback.Task{}, 0), ErrQueueDisabled)
	require.NoError(t, c.Close())
}

func TestHealthyReflectsRedisAvailability(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(queueConfigFor(t, mr.Addr()))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Healthy(context.Background()))
	mr.Close()
	require.Error(t, c.Healthy(context.Background()))
}

func TestHealthyFailsFastOnUnreachableRedis(t *testing.T) {
	c, err := NewClient(&config.QueueConfig{Enabled: true, Host: "127.0.0.1", Port: 1, HealthTimeoutMs: 100})
	require.NoError(t, err)
	defer c.Close()

	started := time.Now()
	require.Error(t, c.Healthy(context.Background()))
	require.Less(t, time.Since(started), 2*time.Second)
}

func TestPostbackDeliverTaskPayload(t *testing.T) {
	task := postback.Task{ConversionID: 5, EventType: constants.ConversionTypePurchase, TxID: "tx", Status: constants.ConversionStatusApproved}
	asynqTask, err := NewPostbackDeliverTask(task)
	require.NoError(t, err)
	require.Equal(t, constants.TaskPostbackDeliver, asynqTask.Type())

	decoded, err := ParsePostbackDeliverTask(asynq.NewTask(TaskPostbackDeliver, asynqTask.Payload()))
	require.NoError(t, err)
	require.Equal(t, uint(5), decoded.ConversionID)
	require.Equal(t, "tx", decoded.TxID)
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Host: "redis", Port: 6380, DB: 2})
	require.Equal(t, "redis:6380", opt.Addr)
	require.Equal(t, 2, opt.DB)
	require.Equal(t, 10, cfg.Concurrency)
	require.Equal(t, 10, cfg.Queues[PostbackQueue])
}

func TestEnqueueSetsTimeoutCoveringRetryBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(queueConfigFor(t, mr.Addr()))
	require.NoError(t, err)
	defer c.Close()

	require.GreaterOrEqual(t, c.TaskTimeout(), postback.MaxRetryBudget())
	require.NoError(t, c.EnqueuePostbackDelivery(context.Background(), postback.Task{ConversionID: 9, TxID: "tx-9"}, time.Minute))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()
	tasks, err := inspector.ListScheduledTasks(PostbackQueue)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, c.TaskTimeout(), tasks[0].Timeout)
	require.Equal(t, 0, tasks[0].MaxRetry)
}

func TestResolveTaskTimeoutKeepsLongerConfiguredValue(t *testing.T) {
	floor := postback.MaxRetryBudget() + taskTimeoutMargin
	require.Equal(t, floor, resolveTaskTimeout(0))
	require.Equal(t, floor, resolveTaskTimeout(1))
	long := int((floor + time.Hour) / time.Minute)
	require.Equal(t, time.Duration(long)*time.Minute, resolveTaskTimeout(long))
}
