package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian/internal/platform/db"
	"github.com/meridian-wms/meridian/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if _, ok := r.db.(pgx.Tx); ok {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Create(ctx context.Context, order SalesOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO sales_orders (order_number, customer_id, status, payment_status, subtotal, total_amount, assigned_to, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
RETURNING id`,
		order.OrderNumber, order.CustomerID, order.Status, order.PaymentStatus,
		order.Subtotal, order.TotalAmount, order.AssignedTo, order.Notes, order.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sales order: %w", err)
	}
	return id, nil
}

func (r *repository) InsertLine(ctx context.Context, line SalesOrderLine) (int64, error) {
	allocations, histories, err := marshalLineJSON(line)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO sales_order_lines (sales_order_id, product_id, quantity, quantity_allocated, quantity_picked, quantity_shipped, uom, unit_price, line_total, status, backorder_reason, allocation_details, picking_history, packing_history, shipping_history, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
RETURNING id`,
		line.SalesOrderID, line.ProductID, line.Quantity, line.QuantityAllocated,
		line.QuantityPicked, line.QuantityShipped, line.UOM, line.UnitPrice, line.LineTotal,
		line.Status, line.BackorderReason,
		allocations, histories[0], histories[1], histories[2],
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sales order line: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	var o SalesOrder
	err := r.db.QueryRow(ctx, `SELECT id, order_number, customer_id, status, payment_status, subtotal, total_amount, assigned_to, notes, picked_at, picked_by, packed_at, packed_by, shipped_date, tracking_number, actual_delivery_date, cancelled_at, cancelled_by, cancellation_reason, created_by, created_at, updated_at
FROM sales_orders WHERE id = $1`, id).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.TotalAmount, &o.AssignedTo, &o.Notes,
		&o.PickedAt, &o.PickedBy, &o.PackedAt, &o.PackedBy,
		&o.ShippedDate, &o.TrackingNumber, &o.ActualDeliveryDate,
		&o.CancelledAt, &o.CancelledBy, &o.CancellationReason,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sales order: %w", err)
	}

	lines, err := r.listLines(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (r *repository) listLines(ctx context.Context, orderID int64) ([]SalesOrderLine, error) {
	rows, err := r.db.Query(ctx, `SELECT id, sales_order_id, product_id, quantity, quantity_allocated, quantity_picked, quantity_shipped, uom, unit_price, line_total, status, backorder_reason, allocation_details, picking_history, packing_history, shipping_history, created_at, updated_at
FROM sales_order_lines WHERE sales_order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	var lines []SalesOrderLine
	for rows.Next() {
		var line SalesOrderLine
		var allocations, picking, packing, shipping []byte
		if err := rows.Scan(
			&line.ID, &line.SalesOrderID, &line.ProductID,
			&line.Quantity, &line.QuantityAllocated, &line.QuantityPicked, &line.QuantityShipped,
			&line.UOM, &line.UnitPrice, &line.LineTotal, &line.Status, &line.BackorderReason,
			&allocations, &picking, &packing, &shipping,
			&line.CreatedAt, &line.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if err := unmarshalLineJSON(&line, allocations, picking, packing, shipping); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	conditions := "TRUE"
	args := []interface{}{}
	argPos := 1
	if filter.CustomerID != nil {
		conditions += fmt.Sprintf(" AND customer_id = $%d", argPos)
		args = append(args, *filter.CustomerID)
		argPos++
	}
	if filter.Status != nil {
		conditions += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM sales_orders WHERE "+conditions, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales orders: %w", err)
	}

	pagination := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := fmt.Sprintf(`SELECT id, order_number, customer_id, status, payment_status, subtotal, total_amount, assigned_to, notes, picked_at, picked_by, packed_at, packed_by, shipped_date, tracking_number, actual_delivery_date, cancelled_at, cancelled_by, cancellation_reason, created_by, created_at, updated_at
FROM sales_orders WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, conditions, argPos, argPos+1)
	args = append(args, pagination.PerPage, pagination.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales orders: %w", err)
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		var o SalesOrder
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.PaymentStatus,
			&o.Subtotal, &o.TotalAmount, &o.AssignedTo, &o.Notes,
			&o.PickedAt, &o.PickedBy, &o.PackedAt, &o.PackedBy,
			&o.ShippedDate, &o.TrackingNumber, &o.ActualDeliveryDate,
			&o.CancelledAt, &o.CancelledBy, &o.CancellationReason,
			&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan sales order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) UpdateOrder(ctx context.Context, order *SalesOrder) error {
	_, err := r.db.Exec(ctx, `UPDATE sales_orders
SET status=$2, payment_status=$3, assigned_to=$4, picked_at=$5, picked_by=$6, packed_at=$7, packed_by=$8, shipped_date=$9, tracking_number=$10, actual_delivery_date=$11, cancelled_at=$12, cancelled_by=$13, cancellation_reason=$14, updated_at=NOW()
WHERE id=$1`,
		order.ID, order.Status, order.PaymentStatus, order.AssignedTo,
		order.PickedAt, order.PickedBy, order.PackedAt, order.PackedBy,
		order.ShippedDate, order.TrackingNumber, order.ActualDeliveryDate,
		order.CancelledAt, order.CancelledBy, order.CancellationReason)
	if err != nil {
		return fmt.Errorf("update sales order: %w", err)
	}
	return nil
}

func (r *repository) UpdateLine(ctx context.Context, line *SalesOrderLine) error {
	allocations, histories, err := marshalLineJSON(*line)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `UPDATE sales_order_lines
SET quantity_allocated=$2, quantity_picked=$3, quantity_shipped=$4, status=$5, backorder_reason=$6, allocation_details=$7, picking_history=$8, packing_history=$9, shipping_history=$10, updated_at=NOW()
WHERE id=$1`,
		line.ID, line.QuantityAllocated, line.QuantityPicked, line.QuantityShipped,
		line.Status, line.BackorderReason,
		allocations, histories[0], histories[1], histories[2])
	if err != nil {
		return fmt.Errorf("update sales order line: %w", err)
	}
	return nil
}

func (r *repository) GenerateNumber(ctx context.Context, date time.Time) (string, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM sales_orders WHERE created_at::date = $1::date`, date).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("SO-%s-%04d", date.Format("20060102"), seq), nil
}

func marshalLineJSON(line SalesOrderLine) ([]byte, [3][]byte, error) {
	var histories [3][]byte
	allocations, err := json.Marshal(line.AllocationDetails)
	if err != nil {
		return nil, histories, fmt.Errorf("marshal allocation details: %w", err)
	}
	for i, v := range []interface{}{line.PickingHistory, line.PackingHistory, line.ShippingHistory} {
		histories[i], err = json.Marshal(v)
		if err != nil {
			return nil, histories, fmt.Errorf("marshal line history: %w", err)
		}
	}
	return allocations, histories, nil
}

func unmarshalLineJSON(line *SalesOrderLine, allocations, picking, packing, shipping []byte) error {
	for _, pair := range []struct {
		raw []byte
		dst interface{}
	}{
		{allocations, &line.AllocationDetails},
		{picking, &line.PickingHistory},
		{packing, &line.PackingHistory},
		{shipping, &line.ShippingHistory},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return fmt.Errorf("unmarshal line history: %w", err)
		}
	}
	return nil
}
