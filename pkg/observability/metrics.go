package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal    *prometheus.CounterVec
	AuthzDecisionDuration  *prometheus.HistogramVec
	AuthzRecomputeTotal    *prometheus.CounterVec
	AuthzRecomputeDuration *prometheus.HistogramVec

	// Permission cache metrics
	PermissionCacheHitsTotal   *prometheus.CounterVec
	PermissionCacheMissesTotal *prometheus.CounterVec

	// Grant integrity metrics
	DanglingGrantsTotal prometheus.Gauge

	// Evidence storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	CasesOpenTotal   prometheus.Gauge
	ActiveUsersTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casetrail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casetrail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casetrail_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casetrail_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"requirement", "decision"},
		),
		AuthzDecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casetrail_authz_decision_duration_seconds",
				Help:    "Authorization decision duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"requirement"},
		),
		AuthzRecomputeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casetrail_authz_recompute_total",
				Help: "Total number of effective permission recomputations",
			},
			[]string{"scope", "status"},
		),
		AuthzRecomputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casetrail_authz_recompute_duration_seconds",
				Help:    "Effective permission recomputation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		),

		PermissionCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casetrail_permission_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
			[]string{"backend"},
		),
		PermissionCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casetrail_permission_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
			[]string{"backend"},
		),

		DanglingGrantsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "casetrail_dangling_grants_total",
				Help: "Number of grants referencing missing principals or cases",
			},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casetrail_storage_operations_total",
				Help: "Total number of evidence storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casetrail_storage_operation_duration_seconds",
				Help:    "Evidence storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "casetrail_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "casetrail_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		CasesOpenTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "casetrail_cases_open_total",
				Help: "Number of open cases",
			},
		),
		ActiveUsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "casetrail_active_users_total",
				Help: "Total number of active users",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionDuration,
		m.AuthzRecomputeTotal,
		m.AuthzRecomputeDuration,
		m.PermissionCacheHitsTotal,
		m.PermissionCacheMissesTotal,
		m.DanglingGrantsTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.CasesOpenTotal,
		m.ActiveUsersTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// UpdateDBStats copies database pool statistics into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
