package postback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/convtrack/internal/cache"
	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryLog struct {
	mu   sync.Mutex
	rows []models.PostbackDelivery
}

func (m *memoryLog) Create(delivery *models.PostbackDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delivery.ID = uint(len(m.rows) + 1)
	m.rows = append(m.rows, *delivery)
	return nil
}

func (m *memoryLog) HasSuccess(key repository.DeliveryDedupKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ProfileID == key.ProfileID && row.EventType == key.EventType &&
			row.ClickID == key.ClickID && row.ConversionStatus == key.Status &&
			row.Status == constants.PostbackDeliverySuccess {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryLog) snapshot() []models.PostbackDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PostbackDelivery, len(m.rows))
	copy(out, m.rows)
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestDispatcher(log DeliveryLog, sleeper *sleepRecorder, opts DispatcherOptions) *Dispatcher {
	if sleeper != nil {
		opts.Sleep = sleeper.sleep
	}
	return NewDispatcher(fixedRenderer(), NewHTTPSender(nil, "test-agent", 64), log, opts)
}

func TestBackoffDelay(t *testing.T) {
	require.Equal(t, 2*time.Second, BackoffDelay(2, 1))
	require.Equal(t, 4*time.Second, BackoffDelay(2, 2))
	require.Equal(t, 8*time.Second, BackoffDelay(2, 3))
	require.Equal(t, time.Duration(0), BackoffDelay(0, 3))
}

func TestDeliverAlwaysFailingRecordsEveryAttempt(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	log := &memoryLog{}
	sleeper := &sleepRecorder{}
	d := newTestDispatcher(log, sleeper, DispatcherOptions{})
	profile := models.PostbackProfile{ID: 7, EndpointURL: server.URL + "/pb?cid={clickid}", Method: "GET", Retries: 3, BackoffBaseSec: 2, TimeoutMs: 1000}

	outcome := d.Deliver(context.Background(), sampleTask(t), profile)
	require.Equal(t, OutcomeFailed, outcome.Status)
	require.Equal(t, 3, outcome.Attempts)
	require.EqualValues(t, 3, hits.Load())

	rows := log.snapshot()
	require.Len(t, rows, 3)
	wantStatus := []string{constants.PostbackDeliveryRetrying, constants.PostbackDeliveryRetrying, constants.PostbackDeliveryFailed}
	for i, row := range rows {
		require.Equal(t, i+1, row.Attempt)
		require.Equal(t, 3, row.MaxAttempts)
		require.Equal(t, wantStatus[i], row.Status)
		require.Equal(t, http.StatusInternalServerError, row.ResponseCode)
		require.Equal(t, rows[0].DeliveryKey, row.DeliveryKey)
	}
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestDeliverInterruptedBackoffRecordsTerminalFailure(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := newTestDispatcher(log, nil, DispatcherOptions{})
	profile := models.PostbackProfile{ID: 3, EndpointURL: server.URL, Method: "GET", Retries: 3, BackoffBaseSec: 2, TimeoutMs: 1000}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	outcome := d.Deliver(ctx, sampleTask(t), profile)
	require.Equal(t, OutcomeFailed, outcome.Status)
	require.ErrorIs(t, outcome.Err, context.DeadlineExceeded)
	require.EqualValues(t, 1, hits.Load())

	rows := log.snapshot()
	require.Len(t, rows, 2)
	require.Equal(t, constants.PostbackDeliveryRetrying, rows[0].Status)
	require.Equal(t, 1, rows[0].Attempt)
	require.Equal(t, constants.PostbackDeliveryFailed, rows[1].Status)
	require.Equal(t, 2, rows[1].Attempt)
	require.Equal(t, 3, rows[1].MaxAttempts)
	require.Equal(t, rows[0].DeliveryKey, rows[1].DeliveryKey)
	require.Contains(t, rows[1].Error, "retry interrupted")
}

func TestDeliverTruncatedBodyStaysValidUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("a" + strings.Repeat("成功", 10)))
	}))
	defer server.Close()

	log := &memoryLog{}
	d := NewDispatcher(fixedRenderer(), NewHTTPSender(nil, "test-agent", 8), log, DispatcherOptions{})
	profile := models.PostbackProfile{ID: 4, EndpointURL: server.URL, Method: "GET", Retries: 1, TimeoutMs: 1000}

	outcome := d.Deliver(context.Background(), sampleTask(t), profile)
	require.Equal(t, OutcomeFailed, outcome.Status)
	rows := log.snapshot()
	require.Len(t, rows, 1)
	require.True(t, utf8.ValidString(rows[0].ResponseBody), "body %q", rows[0].ResponseBody)
	require.Equal(t, "a成功", rows[0].ResponseBody)
}

func TestRetryBudgetCoversEveryAttempt(t *testing.T) {
	require.Equal(t, 3*time.Second+2*time.Second+4*time.Second, RetryBudget(3, time.Second, 2))
	require.Equal(t, MaxBackoffDelay, BackoffDelay(MaxBackoffBaseSec, 5))
	require.Greater(t, MaxRetryBudget(), 9*MaxBackoffDelay)
}

func TestDeliverSucceedsAfterRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.Equal(t, "test-agent", r.UserAgent())
		_, _ = w.Write([]byte("OK"))
	}))
	defer server.Close()

	log := &memoryLog{}
	sleeper := &sleepRecorder{}
	d := newTestDispatcher(log, sleeper, DispatcherOptions{})
	profile := models.PostbackProfile{ID: 1, EndpointURL: server.URL, Method: "GET", Retries: 5, BackoffBaseSec: 1}

	outcome := d.Deliver(context.Background(), sampleTask(t), profile)
	require.Equal(t, OutcomeSuccess, outcome.Status)
	rows := log.snapshot()
	require.Len(t, rows, 2)
	require.Equal(t, constants.PostbackDeliveryRetrying, rows[0].Status)
	require.Equal(t, constants.PostbackDeliverySuccess, rows[1].Status)
	require.Equal(t, "OK", rows[1].ResponseBody)
	require.Equal(t, []time.Duration{time.Second}, sleeper.delays)
}

func TestDeliverSuccessKeywordAndDedup(t *testing.T) {
	body := "status=error"
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	log := &memoryLog{}
	d := newTestDispatcher(log, &sleepRecorder{}, DispatcherOptions{})
	profile := models.PostbackProfile{ID: 3, EndpointURL: server.URL, Method: "GET", Retries: 1, SuccessBodyContains: "status=ok"}
	task := sampleTask(t)

	require.Equal(t, OutcomeFailed, d.Deliver(context.Background(), task, profile).Status)

	mu.Lock()
	body = "status=ok"
	mu.Unlock()
	require.Equal(t, OutcomeSuccess, d.Deliver(context.Background(), task, profile).Status)

	// 同一 (click, event, profile, status) 已成功，不再发送
	outcome := d.Deliver(context.Background(), task, profile)
	require.Equal(t, OutcomeDeduplicated, outcome.Status)
	require.Len(t, log.snapshot(), 2)

	// 状态变化后重新投递
	task.Status = constants.ConversionStatusRefunded
	require.Equal(t, OutcomeSuccess, d.Deliver(context.Background(), task, profile).Status)
}

func TestDeliverMasksCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "real-token", r.URL.Query().Get("token"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := newTestDispatcher(log, nil, DispatcherOptions{})
	profile := models.PostbackProfile{ID: 4, EndpointURL: server.URL, Method: "GET", Retries: 1,
		AuthType: constants.PostbackAuthQuery, AuthName: "token", AuthValue: "real-token"}

	require.Equal(t, OutcomeSuccess, d.Deliver(context.Background(), sampleTask(t), profile).Status)
	rows := log.snapshot()
	require.Len(t, rows, 1)
	require.Contains(t, rows[0].RequestURL, "token=%2A%2A%2A")
	require.NotContains(t, rows[0].RequestURL, "real-token")
}

func TestDeliverTimeoutCountsAsFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	log := &memoryLog{}
	d := newTestDispatcher(log, &sleepRecorder{}, DispatcherOptions{})
	profile := models.PostbackProfile{ID: 5, EndpointURL: server.URL, Method: "GET", Retries: 2, TimeoutMs: 50}

	outcome := d.Deliver(context.Background(), sampleTask(t), profile)
	require.Equal(t, OutcomeFailed, outcome.Status)
	rows := log.snapshot()
	require.Len(t, rows, 2)
	require.NotEmpty(t, rows[1].Error)
}

func TestDeliverSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	locker := cache.NewWithRedis(rdb, "test")

	task := sampleTask(t)
	_, ok, err := locker.TryLock(context.Background(), task.LockKey(8), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	log := &memoryLog{}
	d := newTestDispatcher(log, nil, DispatcherOptions{Locker: locker})
	profile := models.PostbackProfile{ID: 8, EndpointURL: "http://127.0.0.1:1", Method: "GET", Retries: 1}

	outcome := d.Deliver(context.Background(), task, profile)
	require.Equal(t, OutcomeInFlight, outcome.Status)
	require.Empty(t, log.snapshot())
}

func TestDeliverAllRunsProfilesConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := &memoryLog{}
	d := newTestDispatcher(log, nil, DispatcherOptions{MaxParallel: 2})
	profiles := []models.PostbackProfile{
		{ID: 1, EndpointURL: server.URL, Method: "GET", Retries: 1},
		{ID: 2, EndpointURL: server.URL, Method: "GET", Retries: 1},
		{ID: 3, EndpointURL: server.URL, Method: "GET", Retries: 1},
	}
	outcomes := d.DeliverAll(context.Background(), sampleTask(t), profiles)
	require.Len(t, outcomes, 3)
	for i, outcome := range outcomes {
		require.Equal(t, profiles[i].ID, outcome.ProfileID)
		require.Equal(t, OutcomeSuccess, outcome.Status)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Len(t, log.snapshot(), 3)
}
