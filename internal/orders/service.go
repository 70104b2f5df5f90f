package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-wms/meridian/internal/ledger"
	"github.com/meridian-wms/meridian/internal/shared"
	"github.com/meridian-wms/meridian/internal/shipping"
)

var (
	// ErrLineNotFound indicates the line does not belong to the order.
	ErrLineNotFound = errors.New("orders: line not found")
	// ErrNothingPicked indicates a pack attempt against a line with no picks.
	ErrNothingPicked = errors.New("orders: nothing picked to pack")
	// ErrAlreadyShipped indicates a cancel attempt after stock left the building.
	ErrAlreadyShipped = errors.New("orders: order has shipped lines")
	// ErrNotPacked indicates a ship attempt before every line is packed.
	ErrNotPacked = errors.New("orders: order is not fully packed")
	// ErrOrderNotActive indicates a fulfilment step against a held or
	// terminal order.
	ErrOrderNotActive = errors.New("orders: order is not active")
)

// InventoryPort is the slice of the ledger strategy the fulfilment
// workflows use. Stock truth always lives in the ledger; this package only
// tracks fulfilment progress counters.
type InventoryPort interface {
	AvailableRows(ctx context.Context, productID int64) ([]ledger.LedgerRow, error)
	Pick(ctx context.Context, input ledger.PickInput) (ledger.Result, error)
}

// ProductInfoPort resolves product facts needed for shipping.
type ProductInfoPort interface {
	ProductWeight(ctx context.Context, productID int64) (float64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AllocationRecorder counts allocation outcomes.
type AllocationRecorder interface {
	RecordAllocation(outcome string)
}

// Service drives the sales order fulfilment workflows: create, allocate,
// pick, pack, ship, cancel, hold.
type Service struct {
	repo      Repository
	inventory InventoryPort
	shipper   shipping.Provider
	products  ProductInfoPort
	audit     AuditPort
	metrics   AllocationRecorder
	logger    *slog.Logger
	clock     func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Clock func() time.Time
}

// NewService builds the fulfilment service.
func NewService(repo Repository, inventory InventoryPort, shipper shipping.Provider, products ProductInfoPort, audit AuditPort, metrics AllocationRecorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		inventory: inventory,
		shipper:   shipper,
		products:  products,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		clock:     clock,
	}
}

// Create registers a new sales order in pending status.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, actorID int64) (*SalesOrder, error) {
	now := s.clock()
	number, err := s.repo.GenerateNumber(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}

	order := SalesOrder{
		OrderNumber:   number,
		CustomerID:    req.CustomerID,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusUnpaid,
		Notes:         req.Notes,
		AssignedTo:    req.AssignedTo,
		CreatedBy:     actorID,
	}
	subtotal := decimal.Zero
	lines := make([]SalesOrderLine, 0, len(req.Lines))
	for _, lineReq := range req.Lines {
		unitPrice := decimal.NewFromFloat(lineReq.UnitPrice)
		lineTotal := unitPrice.Mul(decimal.NewFromFloat(lineReq.Quantity))
		subtotal = subtotal.Add(lineTotal)
		lines = append(lines, SalesOrderLine{
			ProductID: lineReq.ProductID,
			Quantity:  lineReq.Quantity,
			UOM:       lineReq.UOM,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
			Status:    LineStatusPending,
		})
	}
	order.Subtotal = subtotal
	order.TotalAmount = subtotal

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		orderID = id
		for i := range lines {
			lines[i].SalesOrderID = id
			if _, err := repo.InsertLine(ctx, lines[i]); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "order:create", orderID, nil)
	return s.repo.Get(ctx, orderID)
}

// RecordPickInput identifies the pick being recorded against a line.
type RecordPickInput struct {
	OrderID    int64
	LineID     int64
	LocationID int64
	Quantity   float64
	Lot        string
	Batch      string
	ActorID    int64
}

// RecordPick consumes stock from the ledger FIFO and advances the line. The
// ledger is the arbiter of availability; allocation details are not a hold.
func (s *Service) RecordPick(ctx context.Context, input RecordPickInput) (*SalesOrder, error) {
	if input.Quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	order, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !orderActive(order.Status) {
		return nil, ErrOrderNotActive
	}
	line := findLine(order, input.LineID)
	if line == nil {
		return nil, ErrLineNotFound
	}
	if line.Status == LineStatusCancelled || line.Status == LineStatusShipped {
		return nil, &IllegalTransitionError{Entity: "sales_order_line", From: string(line.Status), To: string(LineStatusPicking)}
	}

	result, err := s.inventory.Pick(ctx, ledger.PickInput{
		ProductID:  line.ProductID,
		LocationID: input.LocationID,
		Quantity:   input.Quantity,
		Attrs:      ledger.Attrs{Lot: input.Lot, Batch: input.Batch},
		Ref:        ledger.OrderRef(order.ID),
		ActorID:    input.ActorID,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock()
	line.QuantityPicked += input.Quantity
	line.PickingHistory = append(line.PickingHistory, PickingEvent{
		Quantity:   input.Quantity,
		LocationID: input.LocationID,
		MovementID: result.Movement.ID,
		ActorID:    input.ActorID,
		At:         now,
	})
	target := LineStatusPicking
	if line.FullyPicked() {
		target = LineStatusPicked
	}
	if line.Status != target {
		if err := line.TransitionTo(target, now); err != nil {
			return nil, err
		}
	}
	applyDerivedStatus(order, now, input.ActorID)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateLine(ctx, line); err != nil {
			return err
		}
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("persist pick: %w", err)
	}
	s.recordAudit(ctx, input.ActorID, "order:pick", order.ID, map[string]any{
		"line_id":     line.ID,
		"quantity":    input.Quantity,
		"movement_id": result.Movement.ID,
	})
	return order, nil
}

// PackLine marks a picked line as packed. Packing requires at least one
// recorded pick against the line.
func (s *Service) PackLine(ctx context.Context, orderID, lineID, actorID int64) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !orderActive(order.Status) {
		return nil, ErrOrderNotActive
	}
	line := findLine(order, lineID)
	if line == nil {
		return nil, ErrLineNotFound
	}
	if line.QuantityPicked <= 0 {
		return nil, ErrNothingPicked
	}
	now := s.clock()
	if err := line.TransitionTo(LineStatusPacked, now); err != nil {
		return nil, err
	}
	line.PackingHistory = append(line.PackingHistory, PackingEvent{
		Quantity: line.QuantityPicked,
		ActorID:  actorID,
		At:       now,
	})

	if allActiveLines(order, LineStatusPacked) {
		if order.CanTransition(OrderStatusPacked) {
			_ = order.TransitionTo(OrderStatusPacked, actorID, "", now)
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.UpdateLine(ctx, line); err != nil {
			return err
		}
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("persist pack: %w", err)
	}
	s.recordAudit(ctx, actorID, "order:pack", order.ID, map[string]any{"line_id": line.ID})
	return order, nil
}

// Ship purchases a label from the carrier and ships every packed line.
func (s *Service) Ship(ctx context.Context, orderID, actorID int64) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !orderActive(order.Status) {
		return nil, ErrOrderNotActive
	}
	if !allActiveLines(order, LineStatusPacked) {
		return nil, ErrNotPacked
	}

	weight, err := s.shipmentWeight(ctx, order)
	if err != nil {
		return nil, err
	}
	label, err := s.shipper.CreateLabel(ctx, shipping.Shipment{OrderID: order.ID, WeightKg: weight})
	if err != nil {
		return nil, fmt.Errorf("create label: %w", err)
	}

	now := s.clock()
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.Status != LineStatusPacked {
			continue
		}
		if err := line.TransitionTo(LineStatusShipped, now); err != nil {
			return nil, err
		}
		line.QuantityShipped += line.QuantityPicked
		line.ShippingHistory = append(line.ShippingHistory, ShippingEvent{
			Quantity:       line.QuantityPicked,
			Carrier:        label.Carrier,
			TrackingNumber: label.TrackingNumber,
			ActorID:        actorID,
			At:             now,
		})
	}
	if err := order.TransitionTo(OrderStatusShipped, actorID, "", now); err != nil {
		return nil, err
	}
	order.TrackingNumber = &label.TrackingNumber

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		for i := range order.Lines {
			if err := repo.UpdateLine(ctx, &order.Lines[i]); err != nil {
				return err
			}
		}
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("persist shipment: %w", err)
	}
	s.recordAudit(ctx, actorID, "order:ship", order.ID, map[string]any{
		"carrier":  label.Carrier,
		"tracking": label.TrackingNumber,
	})
	return order, nil
}

// Cancel voids the order. Orders with shipped stock cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64, reason string) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	for _, line := range order.Lines {
		if line.QuantityShipped > 0 {
			return nil, ErrAlreadyShipped
		}
	}
	now := s.clock()
	if err := order.TransitionTo(OrderStatusCancelled, actorID, reason, now); err != nil {
		return nil, err
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.Status == LineStatusCancelled {
			continue
		}
		if err := line.TransitionTo(LineStatusCancelled, now); err != nil {
			return nil, err
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		for i := range order.Lines {
			if err := repo.UpdateLine(ctx, &order.Lines[i]); err != nil {
				return err
			}
		}
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("persist cancel: %w", err)
	}
	s.recordAudit(ctx, actorID, "order:cancel", order.ID, map[string]any{"reason": reason})
	return order, nil
}

// Hold suspends an active order.
func (s *Service) Hold(ctx context.Context, orderID, actorID int64, reason string) (*SalesOrder, error) {
	return s.transition(ctx, orderID, actorID, OrderStatusOnHold, reason, "order:hold")
}

// Release resumes a held order. Resumption always returns to pending; the
// next allocation pass re-derives the real fulfilment position.
func (s *Service) Release(ctx context.Context, orderID, actorID int64) (*SalesOrder, error) {
	return s.transition(ctx, orderID, actorID, OrderStatusPending, "", "order:release")
}

// MarkDelivered records carrier delivery confirmation.
func (s *Service) MarkDelivered(ctx context.Context, orderID, actorID int64) (*SalesOrder, error) {
	return s.transition(ctx, orderID, actorID, OrderStatusDelivered, "", "order:deliver")
}

// Complete closes out a delivered or returned order.
func (s *Service) Complete(ctx context.Context, orderID, actorID int64) (*SalesOrder, error) {
	return s.transition(ctx, orderID, actorID, OrderStatusCompleted, "", "order:complete")
}

// MarkPaid updates the payment status and advances orders parked in
// awaiting_payment.
func (s *Service) MarkPaid(ctx context.Context, orderID, actorID int64) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	now := s.clock()
	order.PaymentStatus = PaymentStatusPaid
	order.UpdatedAt = now
	if order.Status == OrderStatusAwaitingPayment {
		if err := order.TransitionTo(OrderStatusPaid, actorID, "", now); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	s.recordAudit(ctx, actorID, "order:paid", order.ID, nil)
	return order, nil
}

// Get loads one order with lines.
func (s *Service) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) transition(ctx context.Context, orderID, actorID int64, to OrderStatus, reason, action string) (*SalesOrder, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
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

func (s *Service) shipmentWeight(ctx context.Context, order *SalesOrder) (float64, error) {
	if s.products == nil {
		return 0, nil
	}
	var total float64
	for _, line := range order.Lines {
		if line.Status != LineStatusPacked {
			continue
		}
		weight, err := s.products.ProductWeight(ctx, line.ProductID)
		if err != nil {
			return 0, fmt.Errorf("product weight: %w", err)
		}
		total += weight * line.QuantityPicked
	}
	return total, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntitySalesOrder,
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}

func findLine(order *SalesOrder, lineID int64) *SalesOrderLine {
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			return &order.Lines[i]
		}
	}
	return nil
}

func allActiveLines(order *SalesOrder, status LineStatus) bool {
	seen := false
	for _, line := range order.Lines {
		if line.Status == LineStatusCancelled {
			continue
		}
		seen = true
		if line.Status != status {
			return false
		}
	}
	return seen
}

func orderActive(status OrderStatus) bool {
	switch status {
	case OrderStatusOnHold, OrderStatusCancelled, OrderStatusCompleted:
		return false
	}
	return true
}
