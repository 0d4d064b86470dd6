package postback

import (
	"sync/atomic"
	"time"

	"github.com/convtrack/internal/constants"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters 进程内计数快照
type Counters struct {
	Processed   int64 `json:"processed"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	Blocked     int64 `json:"blocked"`
	BlockedHard int64 `json:"blocked_hard"`
	BlockedSoft int64 `json:"blocked_soft"`
}

// Metrics 投递指标：prometheus 导出 + 进程内原子计数
type Metrics struct {
	processed   atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	blockedHard atomic.Int64
	blockedSoft atomic.Int64

	tasks      prometheus.Counter
	deliveries *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	blocked    *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	latency    prometheus.Histogram
}

// NewMetrics 创建并注册指标；registerer 为空时仅保留进程内计数
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convtrack_postback_tasks_total",
			Help: "Postback tasks processed by the pipeline.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convtrack_postback_deliveries_total",
			Help: "Terminal postback delivery outcomes per profile run.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convtrack_postback_attempts_total",
			Help: "Outbound postback attempts by outcome.",
		}, []string{"result"}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convtrack_postback_blocked_total",
			Help: "Profiles blocked by the antifraud gate.",
		}, []string{"level"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convtrack_postback_skipped_total",
			Help: "Profiles skipped by delivery filters.",
		}, []string{"reason"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "convtrack_postback_attempt_duration_seconds",
			Help:    "Outbound postback attempt latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.tasks, m.deliveries, m.attempts, m.blocked, m.skipped, m.latency)
	}
	return m
}

func (m *Metrics) taskProcessed() {
	if m == nil {
		return
	}
	m.processed.Add(1)
	m.tasks.Inc()
}

func (m *Metrics) deliverySucceeded() {
	if m == nil {
		return
	}
	m.succeeded.Add(1)
	m.deliveries.WithLabelValues("success").Inc()
}

func (m *Metrics) deliveryFailed() {
	if m == nil {
		return
	}
	m.failed.Add(1)
	m.deliveries.WithLabelValues("failed").Inc()
}

func (m *Metrics) deliveryDeduplicated() {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("deduplicated").Inc()
}

func (m *Metrics) attemptObserved(success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "success"
	}
	m.attempts.WithLabelValues(result).Inc()
	m.latency.Observe(elapsed.Seconds())
}

func (m *Metrics) profileBlocked(level string) {
	if m == nil {
		return
	}
	if level == constants.AntifraudLevelHard {
		m.blockedHard.Add(1)
	} else {
		m.blockedSoft.Add(1)
	}
	m.blocked.WithLabelValues(level).Inc()
}

func (m *Metrics) profileSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// Snapshot 读取进程内计数
func (m *Metrics) Snapshot() Counters {
	if m == nil {
		return Counters{}
	}
	hard := m.blockedHard.Load()
	soft := m.blockedSoft.Load()
	return Counters{
		Processed:   m.processed.Load(),
		Succeeded:   m.succeeded.Load(),
		Failed:      m.failed.Load(),
		Blocked:     hard + soft,
		BlockedHard: hard,
		BlockedSoft: soft,
	}
}
