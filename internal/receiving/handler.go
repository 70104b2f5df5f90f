package receiving

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

// Handler manages purchase order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Post("/{orderID}/submit", h.submit)
	r.Post("/{orderID}/approve", h.approve)
	r.Post("/{orderID}/send", h.send)
	r.Post("/{orderID}/confirm", h.confirm)
	r.Post("/{orderID}/cancel", h.cancel)
	r.Post("/{orderID}/close", h.close)
	r.Post("/{orderID}/lines/{lineID}/receive", h.receiveLine)
	r.Post("/{orderID}/lines/{lineID}/reject", h.rejectLine)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePORequest
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
	if v, err := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64); err == nil && v > 0 {
		filter.SupplierID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := POStatus(v)
		filter.Status = &status
	}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_orders": orders, "total": total})
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

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Submit)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Approve)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Send)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Confirm)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.service.Close)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req CancelPORequest
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

func (h *Handler) receiveLine(w http.ResponseWriter, r *http.Request) {
	orderID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}
	var req ReceiveLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ReceiveLineInput{
		OrderID:        orderID,
		LineID:         lineID,
		Quantity:       req.Quantity,
		Lot:            req.Lot,
		Batch:          req.Batch,
		ActorID:        shared.ActorFromContext(r.Context()).ID,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.ExpiryDate != nil {
		input.ExpiryDate = *req.ExpiryDate
	}
	order, err := h.service.ReceiveLine(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) rejectLine(w http.ResponseWriter, r *http.Request) {
	orderID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}
	var req RejectLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.RejectLine(r.Context(), RejectLineInput{
		OrderID:  orderID,
		LineID:   lineID,
		Quantity: req.Quantity,
		Reason:   req.Reason,
		ActorID:  shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) simpleTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, orderID, actorID int64) (*PurchaseOrder, error)) {
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

func (h *Handler) lineIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return 0, 0, false
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		http.Error(w, "invalid line id", http.StatusBadRequest)
		return 0, 0, false
	}
	return orderID, lineID, true
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
	var integrity *shared.ReferentialIntegrityError
	switch {
	case errors.As(err, &illegal):
		writeJSON(w, http.StatusConflict, map[string]any{"error": illegal.Error()})
	case errors.As(err, &integrity):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": integrity.Error()})
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ErrLineNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		http.Error(w, "request already processed", http.StatusConflict)
	case errors.Is(err, ErrNotReceivable), errors.Is(err, ErrCannotClose),
		errors.Is(err, ErrReasonRequired), errors.Is(err, ledger.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("receiving operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
