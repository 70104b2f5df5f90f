package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-wms/meridian/internal/ledger"
	"github.com/meridian-wms/meridian/internal/shared"
)

var (
	// ErrLineNotFound indicates the line does not belong to the order.
	ErrLineNotFound = errors.New("receiving: line not found")
	// ErrNotReceivable indicates a receive against an order that is not yet
	// confirmed or already final.
	ErrNotReceivable = errors.New("receiving: order is not receivable")
	// ErrReasonRequired indicates a rejection without a reason.
	ErrReasonRequired = errors.New("receiving: rejection reason required")
	// ErrCannotClose indicates a close attempt before any stock arrived.
	ErrCannotClose = errors.New("receiving: order must be partially or fully received to close")
)

// receiptEpsilon absorbs float accumulation across fractional receipts so a
// line that sums to its ordered quantity counts as fully received, not over.
const receiptEpsilon = 0.0001

// InventoryPort is the slice of the ledger strategy the receiving workflow
// uses. Rejected stock never crosses this boundary.
type InventoryPort interface {
	Receive(ctx context.Context, input ledger.ReceiveInput) (ledger.Result, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the purchase order lifecycle and the receiving workflow.
type Service struct {
	repo      Repository
	inventory InventoryPort
	audit     AuditPort
	logger    *slog.Logger
	clock     func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Clock func() time.Time
}

// NewService builds the receiving service.
func NewService(repo Repository, inventory InventoryPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, inventory: inventory, audit: audit, logger: logger, clock: clock}
}

// Create registers a new purchase order in draft status.
func (s *Service) Create(ctx context.Context, req CreatePORequest, actorID int64) (*PurchaseOrder, error) {
	now := s.clock()
	number, err := s.repo.GenerateNumber(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("generate po number: %w", err)
	}
	order := PurchaseOrder{
		OrderNumber:  number,
		SupplierID:   req.SupplierID,
		Status:       POStatusDraft,
		ExpectedDate: req.ExpectedDate,
		Notes:        req.Notes,
		CreatedBy:    actorID,
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create purchase order: %w", err)
		}
		orderID = id
		for _, lineReq := range req.Lines {
			line := PurchaseOrderLine{
				PurchaseOrderID:       id,
				ProductID:             lineReq.ProductID,
				QuantityOrdered:       lineReq.Quantity,
				UOM:                   lineReq.UOM,
				UnitCost:              lineReq.unitCost(),
				DestinationLocationID: lineReq.DestinationLocationID,
				Status:                POLineStatusPending,
			}
			if _, err := repo.InsertLine(ctx, line); err != nil {
				return fmt.Errorf("insert po line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "po:create", orderID, nil)
	return s.repo.Get(ctx, orderID)
}

// Submit moves a draft order into approval.
func (s *Service) Submit(ctx context.Context, orderID, actorID int64) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, actorID, POStatusAwaitingApproval, "", "po:submit")
}

// Approve approves a submitted order.
func (s *Service) Approve(ctx context.Context, orderID, actorID int64) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, actorID, POStatusApproved, "", "po:approve")
}

// Send marks the order as sent to the supplier.
func (s *Service) Send(ctx context.Context, orderID, actorID int64) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, actorID, POStatusSent, "", "po:send")
}

// Confirm records supplier confirmation; the order becomes receivable.
func (s *Service) Confirm(ctx context.Context, orderID, actorID int64) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, actorID, POStatusConfirmed, "", "po:confirm")
}

// Cancel voids the order.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64, reason string) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, actorID, POStatusCancelled, reason, "po:cancel")
}

// ReceiveLineInput identifies one receipt against a purchase order line.
type ReceiveLineInput struct {
	OrderID        int64
	LineID         int64
	Quantity       float64
	Lot            string
	Batch          string
	ExpiryDate     time.Time
	ActorID        int64
	IdempotencyKey string
}

// ReceiveLine posts arrived stock into the ledger and advances the line.
// The ledger receipt and the progress counters commit independently: stock
// truth lives in the ledger, the purchase order only tracks progress.
func (s *Service) ReceiveLine(ctx context.Context, input ReceiveLineInput) (*PurchaseOrder, error) {
	if input.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	order, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if order.Status != POStatusConfirmed && order.Status != POStatusPartiallyReceived {
		return nil, ErrNotReceivable
	}
	line := findLine(order, input.LineID)
	if line == nil {
		return nil, ErrLineNotFound
	}
	if line.Status == POLineStatusCancelled {
		return nil, &IllegalTransitionError{Entity: "purchase_order_line", From: string(line.Status), To: string(POLineStatusPartiallyReceived)}
	}

	result, err := s.inventory.Receive(ctx, ledger.ReceiveInput{
		ProductID:  line.ProductID,
		LocationID: line.DestinationLocationID,
		Quantity:   input.Quantity,
		Attrs: ledger.Attrs{
			Lot:        input.Lot,
			Batch:      input.Batch,
			UOM:        line.UOM,
			UnitCost:   line.UnitCost,
			ExpiryDate: input.ExpiryDate,
		},
		Ref:            ledger.PurchaseOrderRef(order.ID),
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	line.QuantityReceived += input.Quantity
	line.ReceivingHistory = append(line.ReceivingHistory, ReceivingEvent{
		Quantity:   input.Quantity,
		LocationID: line.DestinationLocationID,
		MovementID: result.Movement.ID,
		Lot:        input.Lot,
		Batch:      input.Batch,
		ActorID:    input.ActorID,
		At:         now,
	})
	target := POLineStatusPartiallyReceived
	switch {
	case line.QuantityReceived > line.QuantityOrdered+receiptEpsilon:
		target = POLineStatusOverReceived
	case line.QuantityReceived >= line.QuantityOrdered-receiptEpsilon:
		target = POLineStatusFullyReceived
	}
	if line.Status != target {
		if err := line.TransitionTo(target, now); err != nil {
			return nil, err
		}
	}
	if target == POLineStatusOverReceived {
		s.logger.Warn("purchase order line over-received",
			slog.Int64("purchase_order_id", order.ID),
			slog.Int64("line_id", line.ID),
			slog.Float64("ordered", line.QuantityOrdered),
			slog.Float64("received", line.QuantityReceived))
	}
	s.applyDerivedStatus(order, now, input.ActorID)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateLine(ctx, line); err != nil {
			return err
		}
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("persist receipt: %w", err)
	}
	s.recordAudit(ctx, input.ActorID, "po:receive", order.ID, map[string]any{
		"line_id":     line.ID,
		"quantity":    input.Quantity,
		"movement_id": result.Movement.ID,
	})
	return order, nil
}

// RejectLineInput identifies one rejection against a purchase order line.
type RejectLineInput struct {
	OrderID  int64
	LineID   int64
	Quantity float64
	Reason   string
	ActorID  int64
}

// RejectLine records rejected stock. Rejection is independent of the ledger:
// rejected goods are never received, so no movement is posted.
func (s *Service) RejectLine(ctx context.Context, input RejectLineInput) (*PurchaseOrder, error) {
	if input.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	if input.Reason == "" {
		return nil, ErrReasonRequired
	}
	order, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if order.Status != POStatusConfirmed && order.Status != POStatusPartiallyReceived {
		return nil, ErrNotReceivable
	}
	line := findLine(order, input.LineID)
	if line == nil {
		return nil, ErrLineNotFound
	}

	now := s.clock()
	line.QuantityRejected += input.Quantity
	line.UpdatedAt = now
	line.ReceivingHistory = append(line.ReceivingHistory, ReceivingEvent{
		Quantity: input.Quantity,
		Rejected: true,
		Reason:   input.Reason,
		ActorID:  input.ActorID,
		At:       now,
	})

	if err := s.repo.UpdateLine(ctx, line); err != nil {
		return nil, fmt.Errorf("persist rejection: %w", err)
	}
	s.recordAudit(ctx, input.ActorID, "po:reject", order.ID, map[string]any{
		"line_id":  line.ID,
		"quantity": input.Quantity,
		"reason":   input.Reason,
	})
	return s.repo.Get(ctx, input.OrderID)
}

// Close finalises a received order.
func (s *Service) Close(ctx context.Context, orderID, actorID int64) (*PurchaseOrder, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if order.Status != POStatusPartiallyReceived && order.Status != POStatusFullyReceived {
		return nil, ErrCannotClose
	}
	if err := order.TransitionTo(POStatusClosed, actorID, "", s.clock()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist close: %w", err)
	}
	s.recordAudit(ctx, actorID, "po:close", order.ID, nil)
	return order, nil
}

// Get loads one purchase order with lines.
func (s *Service) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns purchase orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) transition(ctx context.Context, orderID, actorID int64, to POStatus, reason, action string) (*PurchaseOrder, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if err := order.TransitionTo(to, actorID, reason, s.clock()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	s.recordAudit(ctx, actorID, action, order.ID, nil)
	return order, nil
}

func (s *Service) applyDerivedStatus(order *PurchaseOrder, now time.Time, actorID int64) {
	switch order.Status {
	case POStatusClosed, POStatusCancelled:
		return
	}
	derived := deriveOrderStatus(order.Lines)
	if derived == order.Status {
		return
	}
	_ = order.TransitionTo(derived, actorID, "", now)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntityPurchaseOrder,
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}

func findLine(order *PurchaseOrder, lineID int64) *PurchaseOrderLine {
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			return &order.Lines[i]
		}
	}
	return nil
}
