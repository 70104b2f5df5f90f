package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian/internal/ledger"
	"github.com/meridian-wms/meridian/internal/shared"
)

// Handler manages sales order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Post("/{orderID}/allocate", h.allocate)
	r.Post("/{orderID}/lines/{lineID}/pick", h.pickLine)
	r.Post("/{orderID}/lines/{lineID}/pack", h.packLine)
	r.Post("/{orderID}/ship", h.ship)
	r.Post("/{orderID}/cancel", h.cancel)
	r.Post("/{orderID}/hold", h.hold)
	r.Post("/{orderID}/release", h.release)
	r.Post("/{orderID}/delivered", h.delivered)
	r.Post("/{orderID}/complete", h.complete)
	r.Post("/{orderID}/pay", h.pay)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if v, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64); err == nil && v > 0 {
		filter.CustomerID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := OrderStatus(v)
		filter.Status = &status
	}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Allocate(r.Context(), orderID, shared.ActorFromContext(r.Context()).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) pickLine(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		http.Error(w, "invalid line id", http.StatusBadRequest)
		return
	}
	var req PickLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.RecordPick(r.Context(), RecordPickInput{
		OrderID:    orderID,
		LineID:     lineID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Lot:        req.Lot,
		Batch:      req.Batch,
		ActorID:    shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) packLine(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		http.Error(w, "invalid line id", http.StatusBadRequest)
		return
	}
	order, err := h.service.PackLine(r.Context(), orderID, lineID, shared.ActorFromContext(r.Context()).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Ship)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req CancelOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.Cancel(r.Context(), orderID, shared.ActorFromContext(r.Context()).ID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req HoldOrderRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.Hold(r.Context(), orderID, shared.ActorFromContext(r.Context()).ID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Release)
}

func (h *Handler) delivered(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.MarkDelivered)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Complete)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.MarkPaid)
}

func (h *Handler) simpleTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, orderID, actorID int64) (*SalesOrder, error)) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := op(r.Context(), orderID, shared.ActorFromContext(r.Context()).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid order id", http.StatusBadRequest)
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
	var illegal *IllegalTransitionError
	var insufficient *ledger.InsufficientInventoryError
	switch {
	case errors.As(err, &illegal):
		writeJSON(w, http.StatusConflict, map[string]any{"error": illegal.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient_inventory",
			"requested": insufficient.Requested,
			"available": insufficient.Available,
			"shortfall": insufficient.Shortfall(),
		})
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ErrLineNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrNothingPicked), errors.Is(err, ErrNotPacked),
		errors.Is(err, ErrAlreadyShipped), errors.Is(err, ErrOrderNotActive),
		errors.Is(err, ledger.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("order operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
