package orders

import (
	"context"
	"time"
)

// ListFilter filters order listings.
type ListFilter struct {
	CustomerID *int64
	Status     *OrderStatus
	Page       int
	PerPage    int
}

// Repository is the persistence port for sales orders. WithTx yields a
// repository bound to one transaction; every write inside the callback
// commits or rolls back together.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, order SalesOrder) (int64, error)
	InsertLine(ctx context.Context, line SalesOrderLine) (int64, error)
	Get(ctx context.Context, id int64) (*SalesOrder, error)
	List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error)
	UpdateOrder(ctx context.Context, order *SalesOrder) error
	UpdateLine(ctx context.Context, line *SalesOrderLine) error
	GenerateNumber(ctx context.Context, date time.Time) (string, error)
}
