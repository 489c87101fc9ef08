package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/authz"
	"github.com/platinummonkey/plantops/pkg/httputil"
	"github.com/platinummonkey/plantops/pkg/middleware"
	"github.com/platinummonkey/plantops/pkg/observability"
	"github.com/platinummonkey/plantops/pkg/operations"
	"github.com/platinummonkey/plantops/pkg/rbac"
)

// DirectorySyncer runs a directory synchronization on demand
type DirectorySyncer interface {
	Sync(ctx context.Context, trigger string) (auth.SyncResult, error)
}

// Dependencies are the collaborators of the API server.
// Services, Authenticator and Authorizer are required; the rest are optional.
type Dependencies struct {
	Services      *operations.Services
	Users         UserStore
	Roles         rbac.RoleStore
	Directory     DirectorySyncer
	Authenticator *middleware.Authenticator
	Authorizer    *authz.Authorizer
	Limiter       middleware.Limiter
	// Audit receives permission matrix edits; AuditEvents serves the trail
	Audit       audit.Logger
	AuditEvents audit.Reader

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// MaxBodyBytes caps request bodies; 0 means 1 MiB
	MaxBodyBytes int64
	// TracingService enables otelhttp spans under this service name
	TracingService string
	// OnRolesChange runs after the permission matrix is modified
	OnRolesChange func()
}

// Server is the HTTP API
type Server struct {
	router  *mux.Router
	handler http.Handler
	deps    Dependencies
}

// NewServer creates the API server and registers every route
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 1 << 20
	}

	s := &Server{router: mux.NewRouter(), deps: deps}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(deps.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)(s.router)
	return s
}

// setupRoutes lays out the router:
//
//	/api                    metrics, tracing, authentication, rate limiting
//	/api/users/me           resolved identity required, no area check
//	/api/...                area authorization
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	if s.deps.TracingService != "" {
		api.Use(observability.TracingMiddleware(s.deps.TracingService))
	}
	api.Use(s.deps.Authenticator.Handler)
	if s.deps.Limiter != nil {
		api.Use(middleware.RateLimit(s.deps.Limiter))
	}

	if s.deps.Users != nil {
		me := api.PathPrefix("/users/me").Subrouter()
		me.Use(middleware.RequireIdentity)
		NewUserHandlers(s.deps.Users).RegisterRoutes(me)
	}

	guarded := api.NewRoute().Subrouter()
	guarded.Use(s.deps.Authorizer.Middleware)

	services := s.deps.Services
	registerResource(guarded, "Factory", "/factories", "factory", services.Factories)
	registerResource(guarded, "Equipment", "/equipment", "equipment", services.Equipment)
	registerResource(guarded, "Job", "/jobs", "job", services.Jobs)
	registerResource(guarded, "Downtime", "/downtime", "downtime", services.Downtime)
	registerResource(guarded, "MaintenanceSchedule", "/maintenance/schedules", "maintenance schedule", services.MaintenanceSchedules)
	registerResource(guarded, "MaintenanceTask", "/maintenance/tasks", "maintenance task", services.MaintenanceTasks)

	if s.deps.Roles != nil {
		rbac.NewHandlers(s.deps.Roles, s.deps.OnRolesChange).WithAudit(s.deps.Audit).RegisterRoutes(guarded)
	}
	if s.deps.AuditEvents != nil {
		audit.NewHandlers(s.deps.AuditEvents).RegisterRoutes(guarded)
	}
	if s.deps.Directory != nil {
		NewDirectoryHandlers(s.deps.Directory).RegisterRoutes(guarded)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router, mainly for route inspection in tests
func (s *Server) Router() *mux.Router {
	return s.router
}
