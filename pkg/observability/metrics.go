package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	ClaimsResolvedTotal *prometheus.CounterVec

	// Identity cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Directory metrics
	DirectoryResyncsTotal   *prometheus.CounterVec
	DirectoryResyncDuration prometheus.Histogram
	DirectoryUsersActive    prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantops_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plantops_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantops_authz_decisions_total",
				Help: "Authorization decisions by area, permission and outcome",
			},
			[]string{"area", "permission", "outcome"},
		),
		ClaimsResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantops_claims_resolutions_total",
				Help: "Claims resolutions by outcome",
			},
			[]string{"outcome"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantops_identity_cache_hits_total",
				Help: "Total number of identity cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantops_identity_cache_misses_total",
				Help: "Total number of identity cache misses",
			},
			[]string{"cache_type"},
		),

		DirectoryResyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantops_directory_resyncs_total",
				Help: "Directory resyncs by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		DirectoryResyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plantops_directory_resync_duration_seconds",
				Help:    "Directory resync duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		DirectoryUsersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plantops_directory_users_active",
				Help: "Active users after the last directory resync",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plantops_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plantops_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.ClaimsResolvedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DirectoryResyncsTotal,
		m.DirectoryResyncDuration,
		m.DirectoryUsersActive,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// The Record helpers are no-ops on a nil *Metrics so callers can run without metrics.

// RecordAuthzDecision counts one authorization outcome
func (m *Metrics) RecordAuthzDecision(area, permission, outcome string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(area, permission, outcome).Inc()
}

// RecordClaimsResolution counts one claims transformation outcome
func (m *Metrics) RecordClaimsResolution(outcome string) {
	if m == nil {
		return
	}
	m.ClaimsResolvedTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts an identity cache hit or miss
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordDirectoryResync records a finished resync
func (m *Metrics) RecordDirectoryResync(trigger string, duration time.Duration, activeUsers int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DirectoryResyncsTotal.WithLabelValues(trigger, status).Inc()
	m.DirectoryResyncDuration.Observe(duration.Seconds())
	if err == nil {
		m.DirectoryUsersActive.Set(float64(activeUsers))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by route name so path ids do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
