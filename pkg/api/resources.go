package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/plantops/pkg/httputil"
	"github.com/platinummonkey/plantops/pkg/operations"
)

// resourceHandlers serves CRUD and paged search for one record type.
// Each handler validates its input and calls exactly one service method.
type resourceHandlers[T any, P operations.Record[T]] struct {
	noun    string
	service operations.Service[T]
}

// registerResource registers the five routes of a controller. Route names
// follow Controller.Action so authorization can resolve the controller.
func registerResource[T any, P operations.Record[T]](router *mux.Router, controller, path, noun string, service operations.Service[T]) {
	h := &resourceHandlers[T, P]{noun: noun, service: service}

	router.HandleFunc(path, h.list).Methods(http.MethodGet).Name(controller + ".List")
	router.HandleFunc(path, h.create).Methods(http.MethodPost).Name(controller + ".Create")
	router.HandleFunc(path+"/{id}", h.get).Methods(http.MethodGet).Name(controller + ".Get")
	router.HandleFunc(path+"/{id}", h.update).Methods(http.MethodPut).Name(controller + ".Update")
	router.HandleFunc(path+"/{id}", h.remove).Methods(http.MethodDelete).Name(controller + ".Delete")
}

func (h *resourceHandlers[T, P]) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	items, total, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WritePage(w, items, total)
}

func (h *resourceHandlers[T, P]) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}

	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, item)
}

func (h *resourceHandlers[T, P]) create(w http.ResponseWriter, r *http.Request) {
	item := new(T)
	if !httputil.ParseJSONOrError(w, r, item) {
		return
	}
	if err := P(item).Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Create(r.Context(), item); err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, item)
}

func (h *resourceHandlers[T, P]) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}

	item := new(T)
	if !httputil.ParseJSONOrError(w, r, item) {
		return
	}
	// the path id wins over any id in the body
	P(item).SetID(id)
	if err := P(item).Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Update(r.Context(), item); err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, item)
}

func (h *resourceHandlers[T, P]) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *resourceHandlers[T, P]) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *operations.ValidationError
	switch {
	case errors.Is(err, operations.ErrNotFound):
		httputil.WriteNotFound(w, h.noun+" not found")
	case errors.Is(err, operations.ErrDuplicate):
		httputil.WriteConflict(w, h.noun+" already exists")
	case errors.Is(err, operations.ErrReference):
		httputil.WriteConflict(w, h.noun+" references a missing record or is still referenced")
	case errors.As(err, &verr):
		httputil.WriteBadRequest(w, verr.Error())
	default:
		httputil.WriteInternalError(w, r, err)
	}
}

// parseFilter reads page, page_size, search, factory_id, equipment_id, from and to
func parseFilter(r *http.Request) (operations.Filter, error) {
	paging, err := httputil.ParsePaging(r)
	if err != nil {
		return operations.Filter{}, err
	}

	factoryID, err := httputil.ParseQueryInt64(r, "factory_id", 0)
	if err != nil {
		return operations.Filter{}, err
	}
	equipmentID, err := httputil.ParseQueryInt64(r, "equipment_id", 0)
	if err != nil {
		return operations.Filter{}, err
	}
	if factoryID < 0 || equipmentID < 0 {
		return operations.Filter{}, fmt.Errorf("factory_id and equipment_id must be positive")
	}

	from, err := httputil.ParseQueryTime(r, "from")
	if err != nil {
		return operations.Filter{}, err
	}
	to, err := httputil.ParseQueryTime(r, "to")
	if err != nil {
		return operations.Filter{}, err
	}
	if from != nil && to != nil && !from.Before(*to) {
		return operations.Filter{}, fmt.Errorf("from must be before to")
	}

	search := httputil.ParseQueryString(r, "search", "")
	if len(search) > 200 {
		return operations.Filter{}, fmt.Errorf("search must be at most 200 characters")
	}

	return operations.Filter{
		Search:      search,
		FactoryID:   factoryID,
		EquipmentID: equipmentID,
		From:        from,
		To:          to,
		Limit:       paging.PageSize,
		Offset:      paging.Offset(),
	}, nil
}
