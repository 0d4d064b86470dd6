package postback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/convtrack/internal/constants"
	"github.com/convtrack/internal/models"
	"github.com/convtrack/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type pipelineFixture struct {
	db         *gorm.DB
	profiles   *repository.GormPostbackProfileRepository
	deliveries *repository.GormPostbackDeliveryRepository
	metrics    *Metrics
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:pipeline_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	profiles := repository.NewPostbackProfileRepository(db)
	deliveries := repository.NewPostbackDeliveryRepository(db)
	metrics := NewMetrics(prometheus.NewRegistry())
	dispatcher := NewDispatcher(fixedRenderer(), NewHTTPSender(nil, "", 0), deliveries, DispatcherOptions{
		Sleep:   func(context.Context, time.Duration) error { return nil },
		Metrics: metrics,
	})
	return &pipelineFixture{
		db:         db,
		profiles:   profiles,
		deliveries: deliveries,
		metrics:    metrics,
		pipeline:   NewPipeline(NewMatcher(profiles), NewGate(), dispatcher, metrics),
	}
}

func (f *pipelineFixture) addProfile(t *testing.T, profile models.PostbackProfile) models.PostbackProfile {
	t.Helper()
	if profile.OwnerScope == "" {
		profile.OwnerScope = constants.PostbackOwnerScopeAdvertiser
		profile.OwnerID = 1
	}
	if profile.ScopeType == "" {
		profile.ScopeType = constants.PostbackScopeGlobal
	}
	if profile.Method == "" {
		profile.Method = constants.PostbackMethodGet
	}
	if profile.Retries == 0 {
		profile.Retries = 1
	}
	profile.Enabled = true
	require.NoError(t, f.profiles.Create(&profile))
	return profile
}

type capturingServer struct {
	*httptest.Server
	mu   sync.Mutex
	urls []string
}

func newCapturingServer(t *testing.T) *capturingServer {
	cs := &capturingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.urls = append(cs.urls, r.URL.String())
		cs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *capturingServer) requests() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]string, len(cs.urls))
	copy(out, cs.urls)
	return out
}

func TestPipelineHardBlockLogsOnlyConfiguredProfiles(t *testing.T) {
	f := newPipelineFixture(t)
	server := newCapturingServer(t)
	logged := f.addProfile(t, models.PostbackProfile{Name: "logged", EndpointURL: server.URL, AfLogBlocked: true})
	f.addProfile(t, models.PostbackProfile{Name: "silent", EndpointURL: server.URL})

	task := sampleTask(t)
	task.AntifraudLevel = constants.AntifraudLevelHard
	summary, err := f.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Matched)
	require.Equal(t, 2, summary.Blocked)
	require.Zero(t, summary.Succeeded)
	require.Empty(t, server.requests())

	rows, total, err := f.deliveries.List(repository.PostbackDeliveryListFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, logged.ID, rows[0].ProfileID)
	require.Equal(t, constants.PostbackDeliveryBlocked, rows[0].Status)
	require.Equal(t, constants.PostbackBlockReasonHard, rows[0].BlockReason)

	counters := f.metrics.Snapshot()
	require.EqualValues(t, 2, counters.BlockedHard)
	require.EqualValues(t, 2, counters.Blocked)
}

func TestPipelineSoftBlockLogsOneRowForNonPending(t *testing.T) {
	f := newPipelineFixture(t)
	server := newCapturingServer(t)
	strict := f.addProfile(t, models.PostbackProfile{Name: "strict", EndpointURL: server.URL, AfSoftOnlyPending: true, AfLogBlocked: true})
	f.addProfile(t, models.PostbackProfile{Name: "lenient", EndpointURL: server.URL})

	task := sampleTask(t)
	task.AntifraudLevel = constants.AntifraudLevelSoft
	summary, err := f.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Matched)
	require.Equal(t, 1, summary.Blocked)
	require.Equal(t, 1, summary.Succeeded)
	require.Len(t, server.requests(), 1)

	rows, total, err := f.deliveries.List(repository.PostbackDeliveryListFilter{Status: constants.PostbackDeliveryBlocked})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, strict.ID, rows[0].ProfileID)
	require.Equal(t, constants.PostbackBlockReasonSoftStatus, rows[0].BlockReason)
	require.Zero(t, rows[0].Attempt)
	require.EqualValues(t, 1, f.metrics.Snapshot().BlockedSoft)
}

func TestPipelineRevenueFilterSkipsWithoutLog(t *testing.T) {
	f := newPipelineFixture(t)
	server := newCapturingServer(t)
	f.addProfile(t, models.PostbackProfile{Name: "rev", EndpointURL: server.URL, FilterRevenueGt0: true, AfLogBlocked: true})

	task := sampleTask(t)
	task.Revenue = mustMoney(t, "0")
	summary, err := f.pipeline.Process(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Empty(t, server.requests())

	_, total, err := f.deliveries.List(repository.PostbackDeliveryListFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestPipelineDeliversInPriorityOrderScope(t *testing.T) {
	f := newPipelineFixture(t)
	server := newCapturingServer(t)
	f.addProfile(t, models.PostbackProfile{
		Name:        "sale",
		EndpointURL: server.URL + "/pb?status={status}&payout={revenue}",
		StatusMap:   models.StatusMap{"purchase": {"approved": "sale"}},
	})
	otherOffer := uint(99)
	f.addProfile(t, models.PostbackProfile{Name: "other-offer", EndpointURL: server.URL, ScopeType: constants.PostbackScopeOffer, ScopeID: &otherOffer})

	summary, err := f.pipeline.Process(context.Background(), sampleTask(t))
	require.NoError(t, err)
	require.Equal(t, 1, summary.Matched)
	require.Equal(t, 1, summary.Succeeded)

	urls := server.requests()
	require.Len(t, urls, 1)
	require.Contains(t, urls[0], "status=sale")
	require.Contains(t, urls[0], "payout=50")

	// 重复处理同一任务不会重复发送
	summary, err = f.pipeline.Process(context.Background(), sampleTask(t))
	require.NoError(t, err)
	require.Equal(t, 1, summary.Deduplicated)
	require.Len(t, server.requests(), 1)
	require.EqualValues(t, 2, f.metrics.Snapshot().Processed)
	require.EqualValues(t, 1, f.metrics.Snapshot().Succeeded)
}

func TestPipelineRejectsInvalidTask(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.pipeline.Process(context.Background(), Task{EventType: "purchase"})
	require.ErrorIs(t, err, ErrInvalidTask)
}
