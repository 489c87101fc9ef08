package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAuthzDecision("Job", "create", "allow")
		m.RecordClaimsResolution("resolved")
		m.RecordCacheLookup("lru", true)
		m.RecordDirectoryResync("cron", time.Second, 10, nil)
	})
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAuthzDecision("Maintenance", "edit", "deny")
	m.RecordAuthzDecision("Maintenance", "edit", "deny")
	m.RecordClaimsResolution("not_found")
	m.RecordCacheLookup("redis", false)
	m.RecordDirectoryResync("claims_miss", 50*time.Millisecond, 12, nil)
	m.RecordDirectoryResync("cron", time.Second, 99, errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("Maintenance", "edit", "deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClaimsResolvedTotal.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("redis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryResyncsTotal.WithLabelValues("cron", "error")))
	// failed resyncs do not overwrite the active gauge
	assert.Equal(t, 12.0, testutil.ToFloat64(m.DirectoryUsersActive))
}

func TestHTTPMetricsMiddleware_UsesRouteName(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	r := mux.NewRouter()
	r.Use(HTTPMetricsMiddleware(m))
	r.HandleFunc("/api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Name("Job.Get")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/17", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "Job.Get", "404")))
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordClaimsResolution("resolved")

	serveMux := http.NewServeMux()
	RegisterMetricsEndpoint(serveMux, registry)

	rec := httptest.NewRecorder()
	serveMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "plantops_claims_resolutions_total")
}
