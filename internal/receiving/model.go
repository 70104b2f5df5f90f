package receiving

import (
	"time"

	"github.com/shopspring/decimal"
)

// POStatus is the purchase order lifecycle state.
type POStatus string

const (
	POStatusDraft             POStatus = "draft"
	POStatusAwaitingApproval  POStatus = "awaiting_approval"
	POStatusApproved          POStatus = "approved"
	POStatusSent              POStatus = "sent"
	POStatusConfirmed         POStatus = "confirmed"
	POStatusPartiallyReceived POStatus = "partially_received"
	POStatusFullyReceived     POStatus = "fully_received"
	POStatusClosed            POStatus = "closed"
	POStatusCancelled         POStatus = "cancelled"
)

// POLineStatus is the per-line receiving state.
type POLineStatus string

const (
	POLineStatusPending           POLineStatus = "pending"
	POLineStatusPartiallyReceived POLineStatus = "partially_received"
	POLineStatusFullyReceived     POLineStatus = "fully_received"
	POLineStatusOverReceived      POLineStatus = "over_received"
	POLineStatusCancelled         POLineStatus = "cancelled"
)

type PurchaseOrder struct {
	ID                 int64               `json:"id" db:"id"`
	OrderNumber        string              `json:"order_number" db:"order_number"`
	SupplierID         int64               `json:"supplier_id" db:"supplier_id"`
	Status             POStatus            `json:"status" db:"status"`
	ExpectedDate       *time.Time          `json:"expected_date,omitempty" db:"expected_date"`
	Notes              *string             `json:"notes,omitempty" db:"notes"`
	SubmittedAt        *time.Time          `json:"submitted_at,omitempty" db:"submitted_at"`
	ApprovedAt         *time.Time          `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy         *int64              `json:"approved_by,omitempty" db:"approved_by"`
	ClosedAt           *time.Time          `json:"closed_at,omitempty" db:"closed_at"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy        *int64              `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason *string             `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedBy          int64               `json:"created_by" db:"created_by"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`
	Lines              []PurchaseOrderLine `json:"lines,omitempty" db:"-"`
}

type PurchaseOrderLine struct {
	ID                    int64            `json:"id" db:"id"`
	PurchaseOrderID       int64            `json:"purchase_order_id" db:"purchase_order_id"`
	ProductID             int64            `json:"product_id" db:"product_id"`
	QuantityOrdered       float64          `json:"quantity_ordered" db:"quantity_ordered"`
	QuantityReceived      float64          `json:"quantity_received" db:"quantity_received"`
	QuantityRejected      float64          `json:"quantity_rejected" db:"quantity_rejected"`
	UOM                   string           `json:"uom" db:"uom"`
	UnitCost              decimal.Decimal  `json:"unit_cost" db:"unit_cost"`
	DestinationLocationID int64            `json:"destination_location_id" db:"destination_location_id"`
	Status                POLineStatus     `json:"status" db:"status"`
	ReceivingHistory      []ReceivingEvent `json:"receiving_history,omitempty" db:"-"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at" db:"updated_at"`
}

// ReceivingEvent is one append-only receive or reject record against a line.
// Rejected stock never reaches the ledger, so rejection events carry no
// movement id.
type ReceivingEvent struct {
	Quantity   float64   `json:"quantity"`
	Rejected   bool      `json:"rejected,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	LocationID int64     `json:"location_id,omitempty"`
	MovementID int64     `json:"movement_id,omitempty"`
	Lot        string    `json:"lot,omitempty"`
	Batch      string    `json:"batch,omitempty"`
	ActorID    int64     `json:"actor_id"`
	At         time.Time `json:"at"`
}

// Remaining reports the quantity still expected against the line.
func (l *PurchaseOrderLine) Remaining() float64 {
	remaining := l.QuantityOrdered - l.QuantityReceived
	if remaining < 0 {
		return 0
	}
	return remaining
}
