package orders

type CreateOrderRequest struct {
	CustomerID int64                    `json:"customer_id" validate:"required,gt=0"`
	AssignedTo *int64                   `json:"assigned_to,omitempty"`
	Notes      *string                  `json:"notes,omitempty"`
	Lines      []CreateOrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type CreateOrderLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UOM       string  `json:"uom" validate:"required,max=20"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type PickLineRequest struct {
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	Lot        string  `json:"lot,omitempty" validate:"max=64"`
	Batch      string  `json:"batch,omitempty" validate:"max=64"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type HoldOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type ListOrdersQuery struct {
	CustomerID *int64       `json:"customer_id,omitempty"`
	Status     *OrderStatus `json:"status,omitempty"`
	Page       int          `json:"page" validate:"gte=0"`
	PerPage    int          `json:"per_page" validate:"gte=0,lte=200"`
}
