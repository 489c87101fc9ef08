package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/observability"
	"github.com/platinummonkey/plantops/pkg/rbac"
)

// AreaResolver maps a controller to its permission area.
// Both *AreaMap and *AreaWatcher satisfy it.
type AreaResolver interface {
	AreaFor(controller string) string
}

// Request is the input of one authorization decision
type Request struct {
	ObjectID   string
	Controller string
	Method     string
}

// Decision is the outcome of Authorize
type Decision struct {
	Allowed    bool
	Area       string
	Permission auth.Permission
	Reason     string
}

// Err returns nil for an allowed decision and a wrapped auth.ErrForbidden otherwise
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", auth.ErrForbidden, d.Reason)
}

// Decision reasons
const (
	ReasonAnonymous     = "anonymous mode"
	ReasonSafeMethod    = "safe method"
	ReasonGranted       = "granted"
	ReasonNotGranted    = "permission not granted"
	ReasonNoEntry       = "no permission entry for area"
	ReasonNoController  = "controller could not be resolved"
	ReasonUnsupportedOp = "unsupported method"
)

// Options configures an Authorizer
type Options struct {
	// AnonymousMode allows every request without looking at the caller
	AnonymousMode bool
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	// Audit receives one event per denied request; nil disables it
	Audit audit.Logger
}

// Authorizer decides mutating requests against the role x area matrix
type Authorizer struct {
	permissions rbac.PermissionSource
	areas       AreaResolver
	anonymous   bool
	logger      *observability.Logger
	metrics     *observability.Metrics
	audit       audit.Logger
}

// NewAuthorizer creates an authorizer. areas defaults to DefaultAreaMap.
func NewAuthorizer(permissions rbac.PermissionSource, areas AreaResolver, opts Options) *Authorizer {
	if areas == nil {
		areas = DefaultAreaMap()
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Authorizer{
		permissions: permissions,
		areas:       areas,
		anonymous:   opts.AnonymousMode,
		logger:      logger,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
	}
}

// RequiredPermission maps an HTTP method to the permission it needs.
// safe is true for methods that never need a permission.
func RequiredPermission(method string) (perm auth.Permission, safe bool, ok bool) {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "", true, true
	case http.MethodPost:
		return auth.PermissionCreate, false, true
	case http.MethodPut, http.MethodPatch:
		return auth.PermissionEdit, false, true
	case http.MethodDelete:
		return auth.PermissionDelete, false, true
	default:
		return "", false, false
	}
}

// Authorize returns the decision for req. Errors are reserved for missing
// identity (auth.ErrMissingObjectID, auth.ErrUserNotFound) and lookup
// failures; a denial is a Decision with Allowed false.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (Decision, error) {
	if a.anonymous {
		return Decision{Allowed: true, Reason: ReasonAnonymous}, nil
	}
	if req.ObjectID == "" {
		return Decision{}, auth.ErrMissingObjectID
	}

	perm, safe, ok := RequiredPermission(req.Method)
	if !ok {
		return a.decide(Decision{Reason: ReasonUnsupportedOp}), nil
	}
	if safe {
		return Decision{Allowed: true, Reason: ReasonSafeMethod}, nil
	}
	if req.Controller == "" {
		return a.decide(Decision{Permission: perm, Reason: ReasonNoController}), nil
	}

	area := a.areas.AreaFor(req.Controller)
	row, err := a.permissions.GetAreaPermission(ctx, req.ObjectID, area)
	switch {
	case errors.Is(err, auth.ErrNoPermissionEntry):
		return a.decide(Decision{Area: area, Permission: perm, Reason: ReasonNoEntry}), nil
	case err != nil:
		a.metrics.RecordAuthzDecision(area, string(perm), "error")
		return Decision{}, err
	}

	if row.Allows(perm) {
		return a.decide(Decision{Allowed: true, Area: area, Permission: perm, Reason: ReasonGranted}), nil
	}
	return a.decide(Decision{Area: area, Permission: perm, Reason: ReasonNotGranted}), nil
}

func (a *Authorizer) decide(d Decision) Decision {
	outcome := "allow"
	if !d.Allowed {
		outcome = "deny"
	}
	a.metrics.RecordAuthzDecision(d.Area, string(d.Permission), outcome)
	return d
}
