package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plantops/pkg/directory"
	"github.com/platinummonkey/plantops/pkg/httputil"
	"github.com/platinummonkey/plantops/pkg/observability"
)

// DirectoryHandlers exposes manual directory synchronization
type DirectoryHandlers struct {
	syncer DirectorySyncer
}

// NewDirectoryHandlers creates the directory handlers
func NewDirectoryHandlers(syncer DirectorySyncer) *DirectoryHandlers {
	return &DirectoryHandlers{syncer: syncer}
}

// RegisterRoutes registers POST /directory/sync. The Directory controller
// maps to the Administration area.
func (h *DirectoryHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/directory/sync", h.Sync).Methods(http.MethodPost).Name("Directory.Sync")
}

// Sync runs one synchronization and returns its summary
func (h *DirectoryHandlers) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.Sync(r.Context(), directory.TriggerManual)
	switch {
	case errors.Is(err, directory.ErrEmptyDirectory):
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "directory returned no members; users left unchanged")
		return
	case err != nil:
		observability.FromContext(r.Context()).WithError(err).Error("Manual directory sync failed")
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "directory sync failed")
		return
	}
	_ = httputil.WriteSuccess(w, result)
}
