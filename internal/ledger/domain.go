package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates logical stock events recorded in the movement log.
type MovementType string

const (
	// MovementReceive represents stock entering a location.
	MovementReceive MovementType = "RECEIVE"
	// MovementTransfer moves stock between two locations.
	MovementTransfer MovementType = "TRANSFER"
	// MovementPick consumes stock FIFO for fulfilment.
	MovementPick MovementType = "PICK"
	// MovementAdjustIncrease sets a row quantity upwards.
	MovementAdjustIncrease MovementType = "ADJUST_INCREASE"
	// MovementAdjustDecrease sets a row quantity downwards.
	MovementAdjustDecrease MovementType = "ADJUST_DECREASE"
	// MovementReturn represents customer-returned stock re-entering a location.
	MovementReturn MovementType = "RETURN"
	// MovementScrap removes damaged or expired stock.
	MovementScrap MovementType = "SCRAP"
	// MovementReserve is the owning record for reservation bookkeeping.
	MovementReserve MovementType = "RESERVE"
	// MovementUnreserve releases a previous reservation.
	MovementUnreserve MovementType = "UNRESERVE"
)

// TransactionType enumerates per-location bookkeeping line types.
type TransactionType string

const (
	TransactionIncrement TransactionType = "INCREMENT"
	TransactionDecrement TransactionType = "DECREMENT"
	TransactionAdjust    TransactionType = "ADJUST"
	TransactionReserve   TransactionType = "RESERVE"
	TransactionUnreserve TransactionType = "UNRESERVE"
)

// RefKind tags the document a movement belongs to.
type RefKind string

const (
	RefKindNone          RefKind = ""
	RefKindOrder         RefKind = "ORDER"
	RefKindPurchaseOrder RefKind = "PURCHASE_ORDER"
	RefKindManual        RefKind = "MANUAL"
)

// Reference links a movement to the document that caused it. The zero value
// means the movement has no owning document.
type Reference struct {
	Kind RefKind
	ID   int64
}

// OrderRef builds a sales order reference.
func OrderRef(id int64) Reference { return Reference{Kind: RefKindOrder, ID: id} }

// PurchaseOrderRef builds a purchase order reference.
func PurchaseOrderRef(id int64) Reference { return Reference{Kind: RefKindPurchaseOrder, ID: id} }

// ManualRef marks an operator-initiated movement.
func ManualRef() Reference { return Reference{Kind: RefKindManual} }

// IsZero reports whether the reference is absent.
func (r Reference) IsZero() bool { return r.Kind == RefKindNone }

func (r Reference) String() string {
	if r.IsZero() {
		return ""
	}
	if r.Kind == RefKindManual {
		return string(RefKindManual)
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// LedgerRow is the authoritative quantity record for one
// (product, location, lot, batch) combination. Rows are never deleted and
// may sit at zero quantity indefinitely.
type LedgerRow struct {
	ID                int64
	ProductID         int64
	LocationID        int64
	Lot               string
	Batch             string
	Quantity          float64
	ReservedQuantity  float64
	AvailableQuantity float64
	UOM               string
	UnitCost          decimal.Decimal
	ReceivedDate      time.Time
	ExpiryDate        time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// recompute refreshes the derived available quantity. Every write path must
// call it before persisting the row.
func (r *LedgerRow) recompute() {
	r.AvailableQuantity = r.Quantity - r.ReservedQuantity
}

// FIFOLayer records one physical stock layer consumed by a pick.
type FIFOLayer struct {
	LedgerRowID  int64     `json:"ledger_row_id"`
	Lot          string    `json:"lot,omitempty"`
	Batch        string    `json:"batch,omitempty"`
	Quantity     float64   `json:"quantity"`
	ReceivedDate time.Time `json:"received_date"`
}

// Movement is the immutable record of one logical inventory event. It is
// written once per strategy call; only the FIFO layer breakdown is attached
// after the pick walk completes.
type Movement struct {
	ID             int64
	Type           MovementType
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       float64
	Lot            string
	Batch          string
	Ref            Reference
	Layers         []FIFOLayer
	ActorID        int64
	Reason         string
	PostedAt       time.Time
	CreatedAt      time.Time
}

// Transaction is the per-location bookkeeping line belonging to a movement.
// Quantity is always a positive magnitude; Type and the owning movement
// carry direction. RunningBalance is the post-transaction on-hand quantity
// for the (product, location) pair.
type Transaction struct {
	ID             int64
	MovementID     int64
	Type           TransactionType
	ProductID      int64
	LocationID     int64
	Quantity       float64
	RunningBalance float64
	UnitCost       decimal.Decimal
	TotalCost      decimal.Decimal
	Lot            string
	Batch          string
	ActorID        int64
	CreatedAt      time.Time
}

// Result groups everything written by one strategy call.
type Result struct {
	Movement     Movement
	Rows         []LedgerRow
	Transactions []Transaction
}

// Attrs carries the optional lot/batch/dating attributes accepted by the
// strategy operations.
type Attrs struct {
	Lot          string
	Batch        string
	UOM          string
	UnitCost     decimal.Decimal
	ReceivedDate time.Time
	ExpiryDate   time.Time
}

// ReceiveInput describes an inbound receipt. IdempotencyKey, when set,
// guards against double-posting the same receipt.
type ReceiveInput struct {
	ProductID      int64
	LocationID     int64
	Quantity       float64
	Attrs          Attrs
	Ref            Reference
	ActorID        int64
	Note           string
	IdempotencyKey string
}

// TransferInput moves stock between two locations.
type TransferInput struct {
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       float64
	Attrs          Attrs
	Ref            Reference
	ActorID        int64
	Note           string
	IdempotencyKey string
}

// PickInput consumes stock FIFO from a location.
type PickInput struct {
	ProductID      int64
	LocationID     int64
	Quantity       float64
	Attrs          Attrs
	Ref            Reference
	ActorID        int64
	Note           string
	IdempotencyKey string
}

// AdjustInput sets a row quantity to an absolute value. Reason is mandatory.
type AdjustInput struct {
	ProductID   int64
	LocationID  int64
	NewQuantity float64
	Attrs       Attrs
	ActorID     int64
	Reason      string
}

// ReserveInput places a hard hold against available quantity.
type ReserveInput struct {
	ProductID  int64
	LocationID int64
	Quantity   float64
	Attrs      Attrs
	Ref        Reference
	ActorID    int64
}

// UnreserveInput releases a previous hold.
type UnreserveInput struct {
	ProductID  int64
	LocationID int64
	Quantity   float64
	Attrs      Attrs
	Ref        Reference
	ActorID    int64
}

// StockCardEntry is one row of the per-product-location movement history.
type StockCardEntry struct {
	MovementID     int64
	MovementType   MovementType
	QtyIn          float64
	QtyOut         float64
	RunningBalance float64
	UnitCost       decimal.Decimal
	Lot            string
	Batch          string
	PostedAt       time.Time
}

// StockCardFilter filters stock card entries.
type StockCardFilter struct {
	ProductID  int64
	LocationID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// InsufficientInventoryError is returned by pick/transfer/reserve when the
// requested quantity exceeds what is available. The operation aborts with no
// partial writes.
type InsufficientInventoryError struct {
	ProductID  int64
	LocationID int64
	Requested  float64
	Available  float64
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("ledger: insufficient inventory for product %d at location %d: requested %.3f, available %.3f",
		e.ProductID, e.LocationID, e.Requested, e.Available)
}

// Shortfall reports how much of the request could not be satisfied.
func (e *InsufficientInventoryError) Shortfall() float64 {
	return e.Requested - e.Available
}

var (
	// ErrRowNotFound indicates no ledger row matches the requested identity.
	ErrRowNotFound = errors.New("ledger: row not found")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrNegativeQuantity indicates an adjust below zero.
	ErrNegativeQuantity = errors.New("ledger: quantity must not be negative")
	// ErrNoAdjustment indicates an adjust to the quantity already on hand.
	ErrNoAdjustment = errors.New("ledger: adjustment equals current quantity")
	// ErrReasonRequired indicates a missing adjustment reason.
	ErrReasonRequired = errors.New("ledger: reason required")
)
