package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/contextkeys"
)

func TestControllerFromPath(t *testing.T) {
	tests := map[string]string{
		"/api/jobs/12":                "jobs",
		"/api/factories":              "factories",
		"/api/maintenance/schedules/": "maintenance",
		"/health":                     "",
		"/api/":                       "",
	}
	for path, want := range tests {
		assert.Equal(t, want, controllerFromPath(path), path)
	}
}

func newAuthzRouter(a *Authorizer) *mux.Router {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(a.Middleware)
	api.HandleFunc("/jobs", ok).Methods(http.MethodPost).Name("Job.Create")
	api.HandleFunc("/maintenance/tasks/{id}", ok).Methods(http.MethodDelete).Name("MaintenanceTask.Delete")
	api.HandleFunc("/legacy/{id}", ok).Methods(http.MethodPut)
	api.HandleFunc("/jobs", ok).Methods(http.MethodGet).Name("Job.List")
	return router
}

func requestAs(method, path, objectID string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if objectID == "" {
		return req
	}
	p := &auth.Principal{Name: "caller", Claims: []auth.Claim{{Type: auth.ObjectIDClaim, Value: objectID}}}
	ctx := contextkeys.WithPrincipal(req.Context(), p)
	ctx = contextkeys.WithIdentity(ctx, &auth.Identity{ObjectID: objectID})
	return req.WithContext(ctx)
}

func TestMiddleware_UnresolvedCallerIsRejected(t *testing.T) {
	src := &matrix{users: map[string]map[string]auth.AreaPermission{"oid-1": {}}}
	router := newAuthzRouter(NewAuthorizer(src, nil, testOptions()))

	// principal only: the claims pipeline skipped it
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	p := &auth.Principal{Claims: []auth.Claim{{Type: auth.ObjectIDClaim, Value: "oid-1"}}}
	req = req.WithContext(contextkeys.WithPrincipal(req.Context(), p))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(http.MethodGet, "/api/jobs", "oid-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddleware(t *testing.T) {
	src := &matrix{users: map[string]map[string]auth.AreaPermission{
		"oid-planner": {
			"Job":         {Area: "Job", Create: true},
			"Maintenance": {Area: "Maintenance", Create: true, Edit: true},
			"legacy":      {Area: "legacy", Edit: true},
		},
		"oid-viewer": {},
	}}
	router := newAuthzRouter(NewAuthorizer(src, nil, testOptions()))

	tests := []struct {
		name   string
		method string
		path   string
		oid    string
		want   int
	}{
		{"granted by route name", http.MethodPost, "/api/jobs", "oid-planner", http.StatusNoContent},
		{"aliased area without delete", http.MethodDelete, "/api/maintenance/tasks/3", "oid-planner", http.StatusForbidden},
		{"legacy path fallback", http.MethodPut, "/api/legacy/3", "oid-planner", http.StatusNoContent},
		{"no tuple", http.MethodPost, "/api/jobs", "oid-viewer", http.StatusForbidden},
		{"safe method", http.MethodGet, "/api/jobs", "oid-viewer", http.StatusNoContent},
		{"no principal", http.MethodPost, "/api/jobs", "", http.StatusUnauthorized},
		{"unknown user", http.MethodPost, "/api/jobs", "oid-ghost", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, requestAs(tt.method, tt.path, tt.oid))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddleware_LookupFailureIs500(t *testing.T) {
	router := newAuthzRouter(NewAuthorizer(&matrix{err: errors.New("db down")}, nil, testOptions()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(http.MethodPost, "/api/jobs", "oid-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestMiddleware_AnonymousMode(t *testing.T) {
	router := newAuthzRouter(NewAuthorizer(&matrix{}, nil, Options{AnonymousMode: true}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(http.MethodDelete, "/api/maintenance/tasks/1", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type recordedEvents []*audit.Event

func (r *recordedEvents) Log(_ context.Context, e *audit.Event) error {
	*r = append(*r, e)
	return nil
}

func TestMiddleware_AuditsDenials(t *testing.T) {
	src := &matrix{users: map[string]map[string]auth.AreaPermission{
		"oid-planner": {"Maintenance": {Area: "Maintenance", Create: true}},
	}}
	var events recordedEvents
	opts := testOptions()
	opts.Audit = &events
	router := newAuthzRouter(NewAuthorizer(src, nil, opts))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(http.MethodDelete, "/api/maintenance/tasks/3", "oid-planner"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, requestAs(http.MethodGet, "/api/jobs", "oid-planner"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, audit.EventAccessDenied, e.Type)
	assert.Equal(t, audit.StatusDenied, e.Status)
	assert.Equal(t, "oid-planner", e.ObjectID)
	assert.Equal(t, "Maintenance", e.Area)
	assert.Equal(t, "MaintenanceTask", e.Controller)
	assert.Equal(t, "/api/maintenance/tasks/3", e.Path)
	assert.Equal(t, ReasonNotGranted, e.Message)
	assert.Equal(t, "delete", e.Metadata["permission"])
}
