package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-wms/meridian/internal/shared"
)

// Handler manages ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	strategy *Strategy
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, strategy *Strategy) *Handler {
	return &Handler{logger: logger, strategy: strategy, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receive", h.receive)
	r.Post("/returns", h.returnStock)
	r.Post("/transfer", h.transfer)
	r.Post("/pick", h.pick)
	r.Post("/scrap", h.scrap)
	r.Post("/adjust", h.adjust)
	r.Post("/reserve", h.reserve)
	r.Post("/unreserve", h.unreserve)
	r.Get("/availability/{productID}", h.availability)
	r.Get("/stock-card", h.stockCard)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	h.postReceive(w, r, h.strategy.Receive)
}

func (h *Handler) returnStock(w http.ResponseWriter, r *http.Request) {
	h.postReceive(w, r, h.strategy.Return)
}

func (h *Handler) postReceive(w http.ResponseWriter, r *http.Request, post func(ctx context.Context, input ReceiveInput) (Result, error)) {
	var req ReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ReceiveInput{
		ProductID:      req.ProductID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		Attrs:          req.Attrs.toAttrs(),
		Ref:            req.Ref.toReference(),
		ActorID:        shared.ActorFromContext(r.Context()).ID,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	}
	result, err := post(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, result, http.StatusCreated)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.strategy.Transfer(r.Context(), TransferInput{
		ProductID:      req.ProductID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Quantity:       req.Quantity,
		Attrs:          req.Attrs.toAttrs(),
		Ref:            req.Ref.toReference(),
		ActorID:        shared.ActorFromContext(r.Context()).ID,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, result, http.StatusCreated)
}

func (h *Handler) pick(w http.ResponseWriter, r *http.Request) {
	h.postPick(w, r, h.strategy.Pick)
}

func (h *Handler) scrap(w http.ResponseWriter, r *http.Request) {
	h.postPick(w, r, h.strategy.Scrap)
}

func (h *Handler) postPick(w http.ResponseWriter, r *http.Request, post func(ctx context.Context, input PickInput) (Result, error)) {
	var req PickRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := post(r.Context(), PickInput{
		ProductID:      req.ProductID,
		LocationID:     req.LocationID,
		Quantity:       req.Quantity,
		Attrs:          req.Attrs.toAttrs(),
		Ref:            req.Ref.toReference(),
		ActorID:        shared.ActorFromContext(r.Context()).ID,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, result, http.StatusCreated)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.strategy.Adjust(r.Context(), AdjustInput{
		ProductID:   req.ProductID,
		LocationID:  req.LocationID,
		NewQuantity: req.NewQuantity,
		Attrs:       req.Attrs.toAttrs(),
		ActorID:     shared.ActorFromContext(r.Context()).ID,
		Reason:      req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, result, http.StatusCreated)
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.strategy.Reserve(r.Context(), ReserveInput{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Attrs:      req.Attrs.toAttrs(),
		Ref:        req.Ref.toReference(),
		ActorID:    shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, result, http.StatusCreated)
}

func (h *Handler) unreserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.strategy.Unreserve(r.Context(), UnreserveInput{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Attrs:      req.Attrs.toAttrs(),
		Ref:        req.Ref.toReference(),
		ActorID:    shared.ActorFromContext(r.Context()).ID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, result, http.StatusCreated)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}
	rows, err := h.strategy.AvailableRows(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]RowResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toRowResponse(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "rows": resp})
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	if productID <= 0 || locationID <= 0 {
		http.Error(w, "product_id and location_id required", http.StatusBadRequest)
		return
	}
	filter := StockCardFilter{ProductID: productID, LocationID: locationID}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	if limit, _ := strconv.Atoi(r.URL.Query().Get("limit")); limit > 0 {
		filter.Limit = limit
	}
	entries, err := h.strategy.GetStockCard(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
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

func (h *Handler) writeResult(w http.ResponseWriter, result Result, status int) {
	writeJSON(w, status, toResultResponse(result))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientInventoryError
	var integrity *shared.ReferentialIntegrityError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient_inventory",
			"requested": insufficient.Requested,
			"available": insufficient.Available,
			"shortfall": insufficient.Shortfall(),
		})
	case errors.As(err, &integrity):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": integrity.Error()})
	case errors.Is(err, ErrRowNotFound):
		http.Error(w, "ledger row not found", http.StatusNotFound)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		http.Error(w, "request already processed", http.StatusConflict)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNegativeQuantity), errors.Is(err, ErrNoAdjustment), errors.Is(err, ErrReasonRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("ledger operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
