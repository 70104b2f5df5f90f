package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is one stock-keeping unit the warehouse handles.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	UOM          string          `json:"uom"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	WeightKg     float64         `json:"weight_kg"`
	ReorderPoint float64         `json:"reorder_point"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
