package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"milestone-bot/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "milestone_bot"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CyclesSkipped    prometheus.Counter
	CycleOverruns    prometheus.Counter
	LastCycleSeconds prometheus.Gauge

	// Per-group outcome metrics
	TokensProcessed *prometheus.CounterVec
	AlertsSent      *prometheus.CounterVec
	TokensSkipped   *prometheus.CounterVec
	Errors          *prometheus.CounterVec

	// Provider metrics
	ProviderFetchDuration *prometheus.HistogramVec
	ProviderFetchErrors   *prometheus.CounterVec
	GuardRejections       prometheus.Counter

	// Notifier metrics
	NotifySendDuration prometheus.Histogram

	registry prometheus.Gatherer
}

// NewMetrics registers metrics on reg under namespace.
// A nil reg registers on a fresh registry, an empty namespace uses DefaultNamespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of polling cycles by result",
		}, []string{"result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Polling cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		CyclesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "skipped_total",
			Help:      "Cycle triggers skipped because a cycle was already running",
		}),
		CycleOverruns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "overruns_total",
			Help:      "Cycles that took longer than the poll interval",
		}),
		LastCycleSeconds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_cycle_timestamp",
			Help:      "Unix timestamp of the last completed cycle",
		}),

		TokensProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "processed_total",
			Help:      "Tokens evaluated by group",
		}, []string{"group"}),
		AlertsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Milestone alerts delivered by group",
		}, []string{"group"}),
		TokensSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "skipped_total",
			Help:      "Tokens skipped by group and reason",
		}, []string{"group", "reason"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Cycle errors by group and stage",
		}, []string{"group", "stage"}),

		ProviderFetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "fetch_duration_seconds",
			Help:      "Market cap fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		ProviderFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "fetch_errors_total",
			Help:      "Market cap fetches that failed entirely",
		}, []string{"provider"}),
		GuardRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "rejections_total",
			Help:      "Readings rejected by the rate-of-change guard",
		}),

		NotifySendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "send_duration_seconds",
			Help:      "Notification send latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		registry: gatherer,
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the gatherer metrics are registered on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordCycle records a finished cycle. Nil receivers are no-ops so callers
// can run without metrics.
func (m *Metrics) RecordCycle(stats domain.CycleStats) {
	if m == nil || !stats.Finished() {
		return
	}
	result := "ok"
	if stats.Errors > 0 {
		result = "errors"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(stats.Duration.Seconds())
	m.LastCycleSeconds.Set(float64(stats.EndTime.Unix()))
}

// RecordCycleSkipped counts a trigger that found a cycle in flight.
func (m *Metrics) RecordCycleSkipped() {
	if m == nil {
		return
	}
	m.CyclesSkipped.Inc()
}

// RecordOverrun counts a cycle that outlasted the poll interval.
func (m *Metrics) RecordOverrun() {
	if m == nil {
		return
	}
	m.CycleOverruns.Inc()
}

// RecordProcessed counts one evaluated token.
func (m *Metrics) RecordProcessed(group domain.Group) {
	if m == nil {
		return
	}
	m.TokensProcessed.WithLabelValues(string(group)).Inc()
}

// RecordAlert counts one delivered alert.
func (m *Metrics) RecordAlert(group domain.Group) {
	if m == nil {
		return
	}
	m.AlertsSent.WithLabelValues(string(group)).Inc()
}

// RecordSkipped counts a skipped token. Guard rejections also feed GuardRejections.
func (m *Metrics) RecordSkipped(group domain.Group, reason string) {
	if m == nil {
		return
	}
	m.TokensSkipped.WithLabelValues(string(group), reason).Inc()
	if reason == SkipGuardRejected {
		m.GuardRejections.Inc()
	}
}

// RecordError counts an error at a cycle stage.
func (m *Metrics) RecordError(group domain.Group, stage string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(string(group), stage).Inc()
}

// RecordFetch records provider latency and whether the fetch failed.
func (m *Metrics) RecordFetch(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ProviderFetchDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.ProviderFetchErrors.WithLabelValues(provider).Inc()
	}
}

// RecordSend records notifier latency.
func (m *Metrics) RecordSend(d time.Duration) {
	if m == nil {
		return
	}
	m.NotifySendDuration.Observe(d.Seconds())
}

// Skip reasons.
const (
	SkipNoMarketCap   = "no_market_cap"
	SkipGuardRejected = "guard_rejected"
)

// Error stages.
const (
	StageGroup     = "group"
	StageToken     = "token"
	StageLedger    = "ledger"
	StageNotify    = "notify"
	StageRender    = "render"
	StageRecord    = "record"
	StageMilestone = "milestones"
	StageTokens    = "tokens"
	StageFetch     = "fetch"
)
