package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	dbQueryDuration *prometheus.HistogramVec
	bulkOperations  *prometheus.CounterVec
	bulkRows        *prometheus.HistogramVec
	bulkDuration    *prometheus.HistogramVec
	bulkRollbacks   *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache reads",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database work per bulk step",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		bulkOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_operations_total",
			Help: "Bulk operation requests by operation, table and outcome",
		}, []string{"operation", "table", "outcome"}),
		bulkRows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulk_operation_rows",
			Help:    "Rows affected by executed bulk operations",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		}, []string{"operation", "table"}),
		bulkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulk_operation_duration_seconds",
			Help:    "Wall time of executed bulk operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "table"}),
		bulkRollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_rollbacks_total",
			Help: "Rollback attempts by table and outcome",
		}, []string{"table", "outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheLatency, m.cacheWrite,
		m.dbQueryDuration, m.bulkOperations, m.bulkRows, m.bulkDuration, m.bulkRollbacks, goroutines)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database timing for a labelled step.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordBulkOperation counts a bulk request outcome; affected rows and duration are only observed
// for executed operations.
func (m *MetricsService) RecordBulkOperation(operation, table, outcome string, affected int, duration time.Duration) {
	if m == nil {
		return
	}
	m.bulkOperations.WithLabelValues(operation, table, outcome).Inc()
	if outcome == "completed" {
		m.bulkRows.WithLabelValues(operation, table).Observe(float64(affected))
		m.bulkDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	}
}

// RecordRollback counts a rollback attempt.
func (m *MetricsService) RecordRollback(table, outcome string) {
	if m == nil {
		return
	}
	m.bulkRollbacks.WithLabelValues(table, outcome).Inc()
}
