package receiving

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreatePORequest struct {
	SupplierID   int64                 `json:"supplier_id" validate:"required,gt=0"`
	ExpectedDate *time.Time            `json:"expected_date,omitempty"`
	Notes        *string               `json:"notes,omitempty"`
	Lines        []CreatePOLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type CreatePOLineRequest struct {
	ProductID             int64   `json:"product_id" validate:"required,gt=0"`
	Quantity              float64 `json:"quantity" validate:"required,gt=0"`
	UOM                   string  `json:"uom" validate:"required,max=20"`
	UnitCost              float64 `json:"unit_cost" validate:"gte=0"`
	DestinationLocationID int64   `json:"destination_location_id" validate:"required,gt=0"`
}

func (r CreatePOLineRequest) unitCost() decimal.Decimal {
	return decimal.NewFromFloat(r.UnitCost)
}

type ReceiveLineRequest struct {
	Quantity       float64    `json:"quantity" validate:"required,gt=0"`
	Lot            string     `json:"lot,omitempty" validate:"max=64"`
	Batch          string     `json:"batch,omitempty" validate:"max=64"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty" validate:"max=128"`
}

type RejectLineRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Reason   string  `json:"reason" validate:"required,max=500"`
}

type CancelPORequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
