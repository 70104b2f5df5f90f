package products

import "github.com/shopspring/decimal"

type ProductForm struct {
	SKU          string  `json:"sku" validate:"required,max=64"`
	Name         string  `json:"name" validate:"required,max=255"`
	Description  string  `json:"description,omitempty" validate:"max=2000"`
	UOM          string  `json:"uom" validate:"required,max=20"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
	WeightKg     float64 `json:"weight_kg" validate:"gte=0"`
	ReorderPoint float64 `json:"reorder_point" validate:"gte=0"`
	IsActive     bool    `json:"is_active"`
}

func (f ProductForm) toProduct() Product {
	return Product{
		SKU:          f.SKU,
		Name:         f.Name,
		Description:  f.Description,
		UOM:          f.UOM,
		UnitCost:     decimal.NewFromFloat(f.UnitCost),
		WeightKg:     f.WeightKg,
		ReorderPoint: f.ReorderPoint,
		IsActive:     f.IsActive,
	}
}
