package receiving

import (
	"context"
	"time"
)

// ListFilter filters purchase order listings.
type ListFilter struct {
	SupplierID *int64
	Status     *POStatus
	Page       int
	PerPage    int
}

// Repository is the persistence port for purchase orders.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, order PurchaseOrder) (int64, error)
	InsertLine(ctx context.Context, line PurchaseOrderLine) (int64, error)
	Get(ctx context.Context, id int64) (*PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	UpdateOrder(ctx context.Context, order *PurchaseOrder) error
	UpdateLine(ctx context.Context, line *PurchaseOrderLine) error
	GenerateNumber(ctx context.Context, date time.Time) (string, error)
}
