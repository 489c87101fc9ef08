package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plantops/pkg/auth"
	"github.com/platinummonkey/plantops/pkg/httputil"
)

// UserStore is the persistence used by the current user endpoints
type UserStore interface {
	GetUserByObjectID(ctx context.Context, objectID string) (*auth.User, error)
	UpdateDialogueFlags(ctx context.Context, userID int64, release, firstLogin *bool) error
}

// UserHandlers serves the caller's own profile
type UserHandlers struct {
	store UserStore
}

// NewUserHandlers creates the current user handlers
func NewUserHandlers(store UserStore) *UserHandlers {
	return &UserHandlers{store: store}
}

// RegisterRoutes registers the routes on a router mounted at /users/me
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("", h.Me).Methods(http.MethodGet).Name("User.Me")
	router.HandleFunc("/dialogues", h.UpdateDialogues).Methods(http.MethodPut).Name("User.UpdateDialogues")
}

// MeResponse is the body of GET /users/me
type MeResponse struct {
	Identity               *auth.Identity `json:"identity"`
	DisplayName            string         `json:"display_name"`
	ShowReleaseDialogue    bool           `json:"show_release_dialogue"`
	ShowFirstLoginDialogue bool           `json:"show_first_login_dialogue"`
}

// Me returns the resolved identity of the caller with their dialogue flags
func (h *UserHandlers) Me(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	user, ok := h.loadUser(w, r, identity.ObjectID)
	if !ok {
		return
	}
	_ = httputil.WriteSuccess(w, meResponse(identity, user))
}

// UpdateDialoguesRequest is the body of PUT /users/me/dialogues.
// Omitted flags are left unchanged.
type UpdateDialoguesRequest struct {
	ShowReleaseDialogue    *bool `json:"show_release_dialogue"`
	ShowFirstLoginDialogue *bool `json:"show_first_login_dialogue"`
}

// UpdateDialogues changes the caller's dialogue flags
func (h *UserHandlers) UpdateDialogues(w http.ResponseWriter, r *http.Request) {
	var req UpdateDialoguesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ShowReleaseDialogue == nil && req.ShowFirstLoginDialogue == nil {
		httputil.WriteBadRequest(w, "at least one dialogue flag is required")
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	err := h.store.UpdateDialogueFlags(r.Context(), identity.UserID, req.ShowReleaseDialogue, req.ShowFirstLoginDialogue)
	if errors.Is(err, auth.ErrUserNotFound) {
		httputil.WriteNotFound(w, "user not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}

	user, ok := h.loadUser(w, r, identity.ObjectID)
	if !ok {
		return
	}
	_ = httputil.WriteSuccess(w, meResponse(identity, user))
}

func (h *UserHandlers) loadUser(w http.ResponseWriter, r *http.Request, objectID string) (*auth.User, bool) {
	user, err := h.store.GetUserByObjectID(r.Context(), objectID)
	if errors.Is(err, auth.ErrUserNotFound) {
		httputil.WriteNotFound(w, "user not found")
		return nil, false
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return nil, false
	}
	return user, true
}

func meResponse(identity *auth.Identity, user *auth.User) MeResponse {
	return MeResponse{
		Identity:               identity,
		DisplayName:            user.DisplayName,
		ShowReleaseDialogue:    user.ShowReleaseDialogue,
		ShowFirstLoginDialogue: user.ShowFirstLoginDialogue,
	}
}
