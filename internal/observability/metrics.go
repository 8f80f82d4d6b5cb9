// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	SwapsRecorded  prometheus.Counter
	SwapsCompleted prometheus.Counter
	SwapsFailed    prometheus.Counter
	LedgerErrors   *prometheus.CounterVec
	LedgerLatency  *prometheus.HistogramVec

	// Revaluation metrics
	RevalueRunsTotal *prometheus.CounterVec
	RevalueDuration  prometheus.Histogram
	SwapsRevalued    *prometheus.CounterVec

	// Read path metrics
	CacheRequests   *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	WSClients       prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRevalue prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "swap_ledger"
	}

	return &Metrics{
		// Ledger metrics
		SwapsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "swaps_recorded_total",
			Help:      "Total number of swaps recorded",
		}),
		SwapsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "swaps_completed_total",
			Help:      "Total number of swaps moved to COMPLETED",
		}),
		SwapsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "swaps_failed_total",
			Help:      "Total number of swaps moved to FAILED",
		}),
		LedgerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Total number of ledger operation errors by kind",
		}, []string{"operation", "kind"}),
		LedgerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		// Revaluation metrics
		RevalueRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revalue",
			Name:      "runs_total",
			Help:      "Total number of PNL revaluation runs by status",
		}, []string{"status"}),
		RevalueDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "revalue",
			Name:      "duration_seconds",
			Help:      "PNL revaluation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		SwapsRevalued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revalue",
			Name:      "swaps_total",
			Help:      "Swaps visited by revaluation runs by outcome",
		}, []string{"outcome"}),

		// Read path metrics
		CacheRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Leaderboard cache lookups by result",
		}, []string{"result"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Ledger events published by sink and status",
		}, []string{"sink", "status"}),
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "ws_clients",
			Help:      "Number of connected WebSocket clients",
		}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRevalue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_revalue_timestamp",
			Help:      "Unix timestamp of last successful PNL revaluation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSwapRecorded increments the recorded swaps counter.
func RecordSwapRecorded() {
	DefaultMetrics.SwapsRecorded.Inc()
}

// RecordSwapCompleted increments the completed swaps counter.
func RecordSwapCompleted() {
	DefaultMetrics.SwapsCompleted.Inc()
}

// RecordSwapFailed increments the failed swaps counter.
func RecordSwapFailed() {
	DefaultMetrics.SwapsFailed.Inc()
}

// RecordLedgerOp records the latency of a ledger operation and its error kind, if any.
func RecordLedgerOp(operation string, seconds float64, errKind string) {
	DefaultMetrics.LedgerLatency.WithLabelValues(operation).Observe(seconds)
	if errKind != "" {
		DefaultMetrics.LedgerErrors.WithLabelValues(operation, errKind).Inc()
	}
}

// RecordRevalueRun records a finished revaluation run.
func RecordRevalueRun(status string, durationSeconds float64, updated, skipped, failed int) {
	DefaultMetrics.RevalueRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RevalueDuration.Observe(durationSeconds)
	DefaultMetrics.SwapsRevalued.WithLabelValues("updated").Add(float64(updated))
	DefaultMetrics.SwapsRevalued.WithLabelValues("skipped").Add(float64(skipped))
	DefaultMetrics.SwapsRevalued.WithLabelValues("failed").Add(float64(failed))
}

// RecordCacheLookup records a leaderboard cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		DefaultMetrics.CacheRequests.WithLabelValues("hit").Inc()
		return
	}
	DefaultMetrics.CacheRequests.WithLabelValues("miss").Inc()
}

// RecordEventPublished records one event delivery attempt to a sink.
func RecordEventPublished(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink, status).Inc()
}

// SetWSClients updates the connected WebSocket clients gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, code string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// MarkRevalueSuccess stamps the last successful revaluation time.
func MarkRevalueSuccess(unix int64) {
	DefaultMetrics.LastSuccessfulRevalue.Set(float64(unix))
}
