package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the sales order fulfilment state.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusAwaitingPayment  OrderStatus = "awaiting_payment"
	OrderStatusPaid             OrderStatus = "paid"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusReadyToPick      OrderStatus = "ready_to_pick"
	OrderStatusPicking          OrderStatus = "picking"
	OrderStatusPicked           OrderStatus = "picked"
	OrderStatusPacking          OrderStatus = "packing"
	OrderStatusPacked           OrderStatus = "packed"
	OrderStatusAwaitingShipment OrderStatus = "awaiting_shipment"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusReturned         OrderStatus = "returned"
	OrderStatusOnHold           OrderStatus = "on_hold"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusCompleted        OrderStatus = "completed"
)

// LineStatus is the per-line fulfilment state.
type LineStatus string

const (
	LineStatusPending            LineStatus = "pending"
	LineStatusAllocated          LineStatus = "allocated"
	LineStatusPartiallyAllocated LineStatus = "partially_allocated"
	LineStatusBackordered        LineStatus = "backordered"
	LineStatusPicking            LineStatus = "picking"
	LineStatusPicked             LineStatus = "picked"
	LineStatusPacked             LineStatus = "packed"
	LineStatusShipped            LineStatus = "shipped"
	LineStatusCancelled          LineStatus = "cancelled"
)

// PaymentStatus tracks payment independently of fulfilment.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type SalesOrder struct {
	ID                 int64            `json:"id" db:"id"`
	OrderNumber        string           `json:"order_number" db:"order_number"`
	CustomerID         int64            `json:"customer_id" db:"customer_id"`
	Status             OrderStatus      `json:"status" db:"status"`
	PaymentStatus      PaymentStatus    `json:"payment_status" db:"payment_status"`
	Subtotal           decimal.Decimal  `json:"subtotal" db:"subtotal"`
	TotalAmount        decimal.Decimal  `json:"total_amount" db:"total_amount"`
	AssignedTo         *int64           `json:"assigned_to,omitempty" db:"assigned_to"`
	Notes              *string          `json:"notes,omitempty" db:"notes"`
	PickedAt           *time.Time       `json:"picked_at,omitempty" db:"picked_at"`
	PickedBy           *int64           `json:"picked_by,omitempty" db:"picked_by"`
	PackedAt           *time.Time       `json:"packed_at,omitempty" db:"packed_at"`
	PackedBy           *int64           `json:"packed_by,omitempty" db:"packed_by"`
	ShippedDate        *time.Time       `json:"shipped_date,omitempty" db:"shipped_date"`
	TrackingNumber     *string          `json:"tracking_number,omitempty" db:"tracking_number"`
	ActualDeliveryDate *time.Time       `json:"actual_delivery_date,omitempty" db:"actual_delivery_date"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy        *int64           `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason *string          `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedBy          int64            `json:"created_by" db:"created_by"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
	Lines              []SalesOrderLine `json:"lines,omitempty" db:"-"`
}

type SalesOrderLine struct {
	ID                int64              `json:"id" db:"id"`
	SalesOrderID      int64              `json:"sales_order_id" db:"sales_order_id"`
	ProductID         int64              `json:"product_id" db:"product_id"`
	Quantity          float64            `json:"quantity" db:"quantity"`
	QuantityAllocated float64            `json:"quantity_allocated" db:"quantity_allocated"`
	QuantityPicked    float64            `json:"quantity_picked" db:"quantity_picked"`
	QuantityShipped   float64            `json:"quantity_shipped" db:"quantity_shipped"`
	UOM               string             `json:"uom" db:"uom"`
	UnitPrice         decimal.Decimal    `json:"unit_price" db:"unit_price"`
	LineTotal         decimal.Decimal    `json:"line_total" db:"line_total"`
	Status            LineStatus         `json:"status" db:"status"`
	BackorderReason   *string            `json:"backorder_reason,omitempty" db:"backorder_reason"`
	AllocationDetails []AllocationDetail `json:"allocation_details,omitempty" db:"-"`
	PickingHistory    []PickingEvent     `json:"picking_history,omitempty" db:"-"`
	PackingHistory    []PackingEvent     `json:"packing_history,omitempty" db:"-"`
	ShippingHistory   []ShippingEvent    `json:"shipping_history,omitempty" db:"-"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}

// AllocationDetail earmarks specific ledger stock against a line. It is
// informational only: no reserved quantity is held, so availability is
// re-checked when the pick is recorded.
type AllocationDetail struct {
	LedgerRowID int64     `json:"ledger_row_id"`
	LocationID  int64     `json:"location_id"`
	Quantity    float64   `json:"quantity"`
	Lot         string    `json:"lot,omitempty"`
	Batch       string    `json:"batch,omitempty"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// PickingEvent is one append-only pick record against a line.
type PickingEvent struct {
	Quantity   float64   `json:"quantity"`
	LocationID int64     `json:"location_id"`
	MovementID int64     `json:"movement_id"`
	ActorID    int64     `json:"actor_id"`
	At         time.Time `json:"at"`
}

// PackingEvent is one append-only pack record against a line.
type PackingEvent struct {
	Quantity float64   `json:"quantity"`
	ActorID  int64     `json:"actor_id"`
	At       time.Time `json:"at"`
}

// ShippingEvent is one append-only ship record against a line.
type ShippingEvent struct {
	Quantity       float64   `json:"quantity"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	ActorID        int64     `json:"actor_id"`
	At             time.Time `json:"at"`
}

// RemainingToAllocate reports how much line demand is not yet allocated.
func (l *SalesOrderLine) RemainingToAllocate() float64 {
	remaining := l.Quantity - l.QuantityAllocated
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FullyAllocated reports whether allocation covers the ordered quantity.
func (l *SalesOrderLine) FullyAllocated() bool {
	return l.QuantityAllocated >= l.Quantity
}

// FullyPicked reports whether picking covers the ordered quantity.
func (l *SalesOrderLine) FullyPicked() bool {
	return l.QuantityPicked >= l.Quantity
}
