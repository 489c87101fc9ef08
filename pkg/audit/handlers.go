package audit

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plantops/pkg/httputil"
)

// Reader is the read side of the audit trail
type Reader interface {
	Search(ctx context.Context, f Filter) ([]Event, int, error)
	Get(ctx context.Context, id int64) (*Event, error)
}

// Handlers serves the audit trail over HTTP
type Handlers struct {
	reader Reader
}

// NewHandlers creates audit handlers
func NewHandlers(reader Reader) *Handlers {
	return &Handlers{reader: reader}
}

// RegisterRoutes registers the audit routes. The Audit controller shares the
// Administration area.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.ListEvents).Methods(http.MethodGet).Name("Audit.List")
	router.HandleFunc("/audit/events/{id}", h.GetEvent).Methods(http.MethodGet).Name("Audit.Get")
}

// ListEvents returns a page of events matching type, object_id, area, from and to
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, total, err := h.reader.Search(r.Context(), f)
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	_ = httputil.WritePage(w, events, total)
}

// GetEvent returns one event
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}

	event, err := h.reader.Get(r.Context(), id)
	if errors.Is(err, ErrEventNotFound) {
		httputil.WriteNotFound(w, "audit event not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, event)
}

func parseFilter(r *http.Request) (Filter, error) {
	paging, err := httputil.ParsePaging(r)
	if err != nil {
		return Filter{}, err
	}

	f := Filter{
		Type:     EventType(strings.TrimSpace(r.URL.Query().Get("type"))),
		ObjectID: strings.TrimSpace(r.URL.Query().Get("object_id")),
		Area:     strings.TrimSpace(r.URL.Query().Get("area")),
		Limit:    paging.PageSize,
		Offset:   paging.Offset(),
	}
	if f.Type != "" && !f.Type.Valid() {
		return Filter{}, errors.New("unknown event type " + string(f.Type))
	}
	if f.From, err = httputil.ParseQueryTime(r, "from"); err != nil {
		return Filter{}, err
	}
	if f.To, err = httputil.ParseQueryTime(r, "to"); err != nil {
		return Filter{}, err
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return Filter{}, errors.New("from must be before to")
	}
	return f, nil
}
