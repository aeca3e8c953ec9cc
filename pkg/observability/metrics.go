package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics the extension exposes: registry
// admission/eviction bookkeeping, per-index search activity, and the
// admin REST surface's request metrics.
type Metrics struct {
	// Admin REST request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Index registry metrics, labeled by table and column (spec.md §4.8)
	IndexesTotal     prometheus.Gauge
	IndexMemoryBytes *prometheus.GaugeVec
	IndexState       *prometheus.GaugeVec // 1 for the entry's current state, 0 otherwise

	// Search and plan metrics
	SearchesTotal  *prometheus.CounterVec
	SearchLatency  *prometheus.HistogramVec
	PlanDecisions  *prometheus.CounterVec // labeled by decision kind

	// Lifecycle metrics
	EvictionsTotal           *prometheus.CounterVec
	AdmissionRejectionsTotal prometheus.Counter
	RestoreFailuresTotal     *prometheus.CounterVec

	// Process metrics
	GoroutinesCount prometheus.Gauge
	MemoryUsage     prometheus.Gauge
}

// NewMetrics creates and registers the extension's Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecann_requests_total",
				Help: "Total number of admin API requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vecann_request_duration_seconds",
				Help:    "Admin API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecann_request_errors_total",
				Help: "Total number of admin API request errors by method and error kind",
			},
			[]string{"method", "error_kind"},
		),

		IndexesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vecann_indexes_total",
				Help: "Total number of indexes known to the registry",
			},
		),
		IndexMemoryBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vecann_index_memory_bytes",
				Help: "Estimated resident memory of an index, by table and column",
			},
			[]string{"table", "column"},
		),
		IndexState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vecann_index_state",
				Help: "1 if the index (table, column) is currently in the given state",
			},
			[]string{"table", "column", "state"},
		),

		SearchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecann_searches_total",
				Help: "Total number of index searches, by table and column",
			},
			[]string{"table", "column"},
		),
		SearchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vecann_search_latency_seconds",
				Help:    "Index search latency in seconds, by table and column",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"table", "column"},
		),
		PlanDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecann_plan_decisions_total",
				Help: "Total number of query-plan hook decisions, by decision kind",
			},
			[]string{"kind"},
		),

		EvictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecann_evictions_total",
				Help: "Total number of index evictions, by table and column",
			},
			[]string{"table", "column"},
		),
		AdmissionRejectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vecann_admission_rejections_total",
				Help: "Total number of index loads rejected by the memory budget",
			},
		),
		RestoreFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vecann_restore_failures_total",
				Help: "Total number of failed snapshot restores, by table and column",
			},
			[]string{"table", "column"},
		),

		GoroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vecann_goroutines",
				Help: "Current number of goroutines",
			},
		),
		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vecann_memory_bytes",
				Help: "Process resident memory in bytes",
			},
		),
	}
}

// RecordRequest records an admin API request with duration and status.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records an admin API error.
func (m *Metrics) RecordError(method, errorKind string) {
	m.RequestErrors.WithLabelValues(method, errorKind).Inc()
}

// SetIndexesTotal sets the current number of registry entries.
func (m *Metrics) SetIndexesTotal(count int) {
	m.IndexesTotal.Set(float64(count))
}

// UpdateIndexMemory updates an index's memory gauge.
func (m *Metrics) UpdateIndexMemory(table, column string, bytes int64) {
	m.IndexMemoryBytes.WithLabelValues(table, column).Set(float64(bytes))
}

// SetIndexState records an index's current lifecycle state, zeroing the
// gauge for every other known state so only one reads 1 at a time.
func (m *Metrics) SetIndexState(table, column string, current string, allStates []string) {
	for _, state := range allStates {
		value := 0.0
		if state == current {
			value = 1.0
		}
		m.IndexState.WithLabelValues(table, column, state).Set(value)
	}
}

// RecordSearch records a completed index search.
func (m *Metrics) RecordSearch(table, column string, duration time.Duration) {
	m.SearchesTotal.WithLabelValues(table, column).Inc()
	m.SearchLatency.WithLabelValues(table, column).Observe(duration.Seconds())
}

// RecordPlanDecision records a query-plan hook decision.
func (m *Metrics) RecordPlanDecision(kind string) {
	m.PlanDecisions.WithLabelValues(kind).Inc()
}

// RecordEviction records an index eviction.
func (m *Metrics) RecordEviction(table, column string) {
	m.EvictionsTotal.WithLabelValues(table, column).Inc()
}

// RecordAdmissionRejection records a memory-budget admission rejection.
func (m *Metrics) RecordAdmissionRejection() {
	m.AdmissionRejectionsTotal.Inc()
}

// RecordRestoreFailure records a failed snapshot restore.
func (m *Metrics) RecordRestoreFailure(table, column string) {
	m.RestoreFailuresTotal.WithLabelValues(table, column).Inc()
}

// UpdateGoroutineCount updates the goroutine count gauge.
func (m *Metrics) UpdateGoroutineCount(count int) {
	m.GoroutinesCount.Set(float64(count))
}

// UpdateMemoryUsage updates the process memory gauge.
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}
