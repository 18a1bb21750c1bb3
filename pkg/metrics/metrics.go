// Package metrics defines the Prometheus metrics exported by the proxy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"

	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultDurationBuckets range from cached lookups to slow warehouse queries.
var DefaultDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// Metrics holds the proxy's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// CacheRequests counts cache lookups by result.
	CacheRequests *prometheus.CounterVec
	// CacheWriteFailures counts results that could not be stored.
	CacheWriteFailures prometheus.Counter
	// CardExecutions counts card requests by source and status.
	CardExecutions *prometheus.CounterVec
	// CardDuration tracks end-to-end card request latency by source.
	CardDuration *prometheus.HistogramVec
	// EngineLogins counts engine login attempts by status.
	EngineLogins *prometheus.CounterVec
	// BatchSize tracks the number of cards per batch request.
	BatchSize prometheus.Histogram
	// RowsIngested counts rows upserted by CSV ingestion per dataset.
	RowsIngested *prometheus.CounterVec
}

// New registers the metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics with reg. Use
// prometheus.NewRegistry() in tests.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bi_cache_requests_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		CacheWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bi_cache_write_failures_total",
			Help: "Card results that could not be written to the cache",
		}),
		CardExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bi_card_executions_total",
			Help: "Card requests by source and status",
		}, []string{"source", "status"}),
		CardDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bi_card_execution_duration_seconds",
			Help:    "Card request duration in seconds",
			Buckets: DefaultDurationBuckets,
		}, []string{"source"}),
		EngineLogins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bi_engine_logins_total",
			Help: "Metabase login attempts by status",
		}, []string{"status"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bi_batch_size",
			Help:    "Cards per batch request",
			Buckets: prometheus.LinearBuckets(1, 5, 10),
		}),
		RowsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bi_ingest_rows_total",
			Help: "Rows upserted by CSV ingestion",
		}, []string{"dataset"}),
	}
}

// ObserveCacheLookup records a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// ObserveCacheWriteFailure records a failed cache write.
func (m *Metrics) ObserveCacheWriteFailure() {
	if m == nil {
		return
	}
	m.CacheWriteFailures.Inc()
}

// ObserveExecution records one card request.
func (m *Metrics) ObserveExecution(source string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	m.CardExecutions.WithLabelValues(source, status).Inc()
	m.CardDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveLogin records an engine login attempt.
func (m *Metrics) ObserveLogin(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.EngineLogins.WithLabelValues(status).Inc()
}

// ObserveBatch records a batch size.
func (m *Metrics) ObserveBatch(n int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(n))
}

// ObserveIngest records rows upserted for a dataset.
func (m *Metrics) ObserveIngest(dataset string, rows int64) {
	if m == nil {
		return
	}
	m.RowsIngested.WithLabelValues(dataset).Add(float64(rows))
}
