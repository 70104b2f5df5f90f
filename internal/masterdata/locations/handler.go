package locations

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian/internal/masterdata/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{locationID}", h.get)
	r.Put("/{locationID}", h.update)
	r.Delete("/{locationID}", h.deactivate)
}

type LocationForm struct {
	Code     string `json:"code" validate:"required,max=64"`
	Zone     string `json:"zone" validate:"required,max=32"`
	Aisle    string `json:"aisle,omitempty" validate:"max=32"`
	Shelf    string `json:"shelf,omitempty" validate:"max=32"`
	Bin      string `json:"bin,omitempty" validate:"max=32"`
	IsActive bool   `json:"is_active"`
}

func (f LocationForm) toLocation() BinLocation {
	return BinLocation{
		Code:     f.Code,
		Zone:     f.Zone,
		Aisle:    f.Aisle,
		Shelf:    f.Shelf,
		Bin:      f.Bin,
		IsActive: f.IsActive,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := shared.ListFilters{Search: r.URL.Query().Get("search")}
	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filters.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if v := r.URL.Query().Get("zone"); v != "" {
		filters.Zone = &v
	}
	if v := r.URL.Query().Get("is_active"); v != "" {
		isActive := v == "true"
		filters.IsActive = &isActive
	}

	locations, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locations, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	location, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, location)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form LocationForm
	if !h.decode(w, r, &form) {
		return
	}
	location, err := h.service.Create(r.Context(), form.toLocation())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, location)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var form LocationForm
	if !h.decode(w, r, &form) {
		return
	}
	if err := h.service.Update(r.Context(), id, form.toLocation()); err != nil {
		h.writeError(w, r, err)
		return
	}
	location, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, location)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid location id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, shared.ErrInvalidID), errors.Is(err, shared.ErrDuplicate):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("location operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
