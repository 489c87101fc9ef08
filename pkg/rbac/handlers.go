package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plantops/pkg/audit"
	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/httputil"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// RoleStore is the persistence used by the role administration endpoints
type RoleStore interface {
	ListRoles(ctx context.Context) ([]auth.Role, error)
	GetRole(ctx context.Context, roleID int64) (*auth.Role, error)
	SetAreaPermission(ctx context.Context, roleID int64, p auth.AreaPermission) error
}

// Handlers provides HTTP handlers for permission matrix administration
type Handlers struct {
	store RoleStore
	// onChange runs after the matrix is modified (cache invalidation)
	onChange func()
	audit    audit.Logger
}

// NewHandlers creates new RBAC handlers. onChange may be nil.
func NewHandlers(store RoleStore, onChange func()) *Handlers {
	return &Handlers{store: store, onChange: onChange}
}

// WithAudit records every matrix edit through logger
func (h *Handlers) WithAudit(logger audit.Logger) *Handlers {
	h.audit = logger
	return h
}

// RegisterRoutes registers the role routes. Route names use Controller.Action
// so the authorization handler maps them to the Administration area.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.ListRoles).Methods(http.MethodGet).Name("Role.List")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods(http.MethodGet).Name("Role.Get")
	router.HandleFunc("/roles/{id}/areas/{area}", h.SetAreaPermission).Methods(http.MethodPut).Name("Role.SetArea")
}

// ListRoles returns every role with its permission rows
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	_ = httputil.WriteSuccess(w, roles)
}

// GetRole returns one role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if errors.Is(err, auth.ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, role)
}

// SetAreaPermissionRequest is the body of PUT /roles/{id}/areas/{area}
type SetAreaPermissionRequest struct {
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// SetAreaPermission upserts one role x area row
func (h *Handlers) SetAreaPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}
	area := mux.Vars(r)["area"]
	if !httputil.ValidateAll(w,
		httputil.RequireNonEmpty("area", area),
		httputil.RequireMaxLength("area", area, 100),
	) {
		return
	}

	var req SetAreaPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm := auth.AreaPermission{Area: area, Create: req.Create, Edit: req.Edit, Delete: req.Delete}
	err := h.store.SetAreaPermission(r.Context(), id, perm)
	if errors.Is(err, auth.ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	if h.onChange != nil {
		h.onChange()
	}

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"role_id": id,
		"area":    area,
		"create":  perm.Create,
		"edit":    perm.Edit,
		"delete":  perm.Delete,
	}).Info("Area permission updated")

	event := audit.NewRequestEvent(r, audit.EventPermissionChange, audit.StatusSuccess)
	event.Area = area
	event.Controller = "Role"
	event.WithMetadata("role_id", id).
		WithMetadata("create", perm.Create).
		WithMetadata("edit", perm.Edit).
		WithMetadata("delete", perm.Delete)
	audit.Record(r.Context(), h.audit, event)

	_ = httputil.WriteSuccess(w, perm)
}
