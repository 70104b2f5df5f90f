package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttrsRequest carries the optional attributes shared by movement requests.
type AttrsRequest struct {
	Lot          string          `json:"lot,omitempty" validate:"omitempty,max=100"`
	Batch        string          `json:"batch,omitempty" validate:"omitempty,max=100"`
	UOM          string          `json:"uom,omitempty" validate:"omitempty,max=20"`
	UnitCost     decimal.Decimal `json:"unit_cost,omitempty"`
	ReceivedDate *time.Time      `json:"received_date,omitempty"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
}

func (a AttrsRequest) toAttrs() Attrs {
	attrs := Attrs{Lot: a.Lot, Batch: a.Batch, UOM: a.UOM, UnitCost: a.UnitCost}
	if a.ReceivedDate != nil {
		attrs.ReceivedDate = *a.ReceivedDate
	}
	if a.ExpiryDate != nil {
		attrs.ExpiryDate = *a.ExpiryDate
	}
	return attrs
}

// ReferenceRequest identifies the owning document of a movement.
type ReferenceRequest struct {
	Kind string `json:"kind" validate:"omitempty,oneof=ORDER PURCHASE_ORDER MANUAL"`
	ID   int64  `json:"id" validate:"gte=0"`
}

func (r ReferenceRequest) toReference() Reference {
	return Reference{Kind: RefKind(r.Kind), ID: r.ID}
}

// ReceiveRequest posts an inbound receipt.
type ReceiveRequest struct {
	ProductID      int64            `json:"product_id" validate:"required,gt=0"`
	LocationID     int64            `json:"location_id" validate:"required,gt=0"`
	Quantity       float64          `json:"quantity" validate:"required,gt=0"`
	Attrs          AttrsRequest     `json:"attrs"`
	Ref            ReferenceRequest `json:"ref"`
	Note           string           `json:"note,omitempty" validate:"omitempty,max=500"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"omitempty,max=200"`
}

// TransferRequest moves stock between locations.
type TransferRequest struct {
	ProductID      int64            `json:"product_id" validate:"required,gt=0"`
	FromLocationID int64            `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64            `json:"to_location_id" validate:"required,gt=0,nefield=FromLocationID"`
	Quantity       float64          `json:"quantity" validate:"required,gt=0"`
	Attrs          AttrsRequest     `json:"attrs"`
	Ref            ReferenceRequest `json:"ref"`
	Note           string           `json:"note,omitempty" validate:"omitempty,max=500"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"omitempty,max=200"`
}

// PickRequest consumes stock FIFO.
type PickRequest struct {
	ProductID      int64            `json:"product_id" validate:"required,gt=0"`
	LocationID     int64            `json:"location_id" validate:"required,gt=0"`
	Quantity       float64          `json:"quantity" validate:"required,gt=0"`
	Attrs          AttrsRequest     `json:"attrs"`
	Ref            ReferenceRequest `json:"ref"`
	Note           string           `json:"note,omitempty" validate:"omitempty,max=500"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"omitempty,max=200"`
}

// AdjustRequest sets a row quantity to an absolute value.
type AdjustRequest struct {
	ProductID   int64        `json:"product_id" validate:"required,gt=0"`
	LocationID  int64        `json:"location_id" validate:"required,gt=0"`
	NewQuantity float64      `json:"new_quantity" validate:"gte=0"`
	Attrs       AttrsRequest `json:"attrs"`
	Reason      string       `json:"reason" validate:"required,min=3,max=500"`
}

// ReserveRequest places or releases a hold on available stock.
type ReserveRequest struct {
	ProductID  int64            `json:"product_id" validate:"required,gt=0"`
	LocationID int64            `json:"location_id" validate:"required,gt=0"`
	Quantity   float64          `json:"quantity" validate:"required,gt=0"`
	Attrs      AttrsRequest     `json:"attrs"`
	Ref        ReferenceRequest `json:"ref"`
}

// MovementResponse is the JSON shape of a posted movement.
type MovementResponse struct {
	ID           int64       `json:"id"`
	Type         string      `json:"type"`
	ProductID    int64       `json:"product_id"`
	FromLocation int64       `json:"from_location_id,omitempty"`
	ToLocation   int64       `json:"to_location_id,omitempty"`
	Quantity     float64     `json:"quantity"`
	Lot          string      `json:"lot,omitempty"`
	Batch        string      `json:"batch,omitempty"`
	Reference    string      `json:"reference,omitempty"`
	Layers       []FIFOLayer `json:"layers,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	PostedAt     time.Time   `json:"posted_at"`
}

// RowResponse is the JSON shape of a ledger row.
type RowResponse struct {
	ID                int64           `json:"id"`
	ProductID         int64           `json:"product_id"`
	LocationID        int64           `json:"location_id"`
	Lot               string          `json:"lot,omitempty"`
	Batch             string          `json:"batch,omitempty"`
	Quantity          float64         `json:"quantity"`
	ReservedQuantity  float64         `json:"reserved_quantity"`
	AvailableQuantity float64         `json:"available_quantity"`
	UOM               string          `json:"uom,omitempty"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	ReceivedDate      time.Time       `json:"received_date"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
}

// TransactionResponse is the JSON shape of a bookkeeping line.
type TransactionResponse struct {
	ID             int64           `json:"id"`
	MovementID     int64           `json:"movement_id"`
	Type           string          `json:"type"`
	LocationID     int64           `json:"location_id"`
	Quantity       float64         `json:"quantity"`
	RunningBalance float64         `json:"running_balance"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
}

// ResultResponse groups everything written by one strategy call.
type ResultResponse struct {
	Movement     MovementResponse      `json:"movement"`
	Rows         []RowResponse         `json:"ledger_rows"`
	Transactions []TransactionResponse `json:"transactions"`
}

func toResultResponse(result Result) ResultResponse {
	resp := ResultResponse{Movement: toMovementResponse(result.Movement)}
	for _, row := range result.Rows {
		resp.Rows = append(resp.Rows, toRowResponse(row))
	}
	for _, txn := range result.Transactions {
		resp.Transactions = append(resp.Transactions, TransactionResponse{
			ID:             txn.ID,
			MovementID:     txn.MovementID,
			Type:           string(txn.Type),
			LocationID:     txn.LocationID,
			Quantity:       txn.Quantity,
			RunningBalance: txn.RunningBalance,
			UnitCost:       txn.UnitCost,
			TotalCost:      txn.TotalCost,
		})
	}
	return resp
}

func toMovementResponse(movement Movement) MovementResponse {
	return MovementResponse{
		ID:           movement.ID,
		Type:         string(movement.Type),
		ProductID:    movement.ProductID,
		FromLocation: movement.FromLocationID,
		ToLocation:   movement.ToLocationID,
		Quantity:     movement.Quantity,
		Lot:          movement.Lot,
		Batch:        movement.Batch,
		Reference:    movement.Ref.String(),
		Layers:       movement.Layers,
		Reason:       movement.Reason,
		PostedAt:     movement.PostedAt,
	}
}

func toRowResponse(row LedgerRow) RowResponse {
	resp := RowResponse{
		ID:                row.ID,
		ProductID:         row.ProductID,
		LocationID:        row.LocationID,
		Lot:               row.Lot,
		Batch:             row.Batch,
		Quantity:          row.Quantity,
		ReservedQuantity:  row.ReservedQuantity,
		AvailableQuantity: row.AvailableQuantity,
		UOM:               row.UOM,
		UnitCost:          row.UnitCost,
		ReceivedDate:      row.ReceivedDate,
	}
	if !row.ExpiryDate.IsZero() {
		expiry := row.ExpiryDate
		resp.ExpiryDate = &expiry
	}
	return resp
}
