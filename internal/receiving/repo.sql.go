package receiving

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

func (r *repository) Create(ctx context.Context, order PurchaseOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO purchase_orders (order_number, supplier_id, status, expected_date, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING id`,
		order.OrderNumber, order.SupplierID, order.Status, order.ExpectedDate, order.Notes, order.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert purchase order: %w", err)
	}
	return id, nil
}

func (r *repository) InsertLine(ctx context.Context, line PurchaseOrderLine) (int64, error) {
	history, err := json.Marshal(line.ReceivingHistory)
	if err != nil {
		return 0, fmt.Errorf("marshal receiving history: %w", err)
	}
	var id int64
	err = r.db.QueryRow(ctx, `INSERT INTO purchase_order_lines (purchase_order_id, product_id, quantity_ordered, quantity_received, quantity_rejected, uom, unit_cost, destination_location_id, status, receiving_history, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
RETURNING id`,
		line.PurchaseOrderID, line.ProductID, line.QuantityOrdered, line.QuantityReceived,
		line.QuantityRejected, line.UOM, line.UnitCost, line.DestinationLocationID,
		line.Status, history,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert purchase order line: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	var o PurchaseOrder
	err := r.db.QueryRow(ctx, `SELECT id, order_number, supplier_id, status, expected_date, notes, submitted_at, approved_at, approved_by, closed_at, cancelled_at, cancelled_by, cancellation_reason, created_by, created_at, updated_at
FROM purchase_orders WHERE id = $1`, id).Scan(
		&o.ID, &o.OrderNumber, &o.SupplierID, &o.Status, &o.ExpectedDate, &o.Notes,
		&o.SubmittedAt, &o.ApprovedAt, &o.ApprovedBy, &o.ClosedAt,
		&o.CancelledAt, &o.CancelledBy, &o.CancellationReason,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT id, purchase_order_id, product_id, quantity_ordered, quantity_received, quantity_rejected, uom, unit_cost, destination_location_id, status, receiving_history, created_at, updated_at
FROM purchase_order_lines WHERE purchase_order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list po lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line PurchaseOrderLine
		var history []byte
		if err := rows.Scan(
			&line.ID, &line.PurchaseOrderID, &line.ProductID,
			&line.QuantityOrdered, &line.QuantityReceived, &line.QuantityRejected,
			&line.UOM, &line.UnitCost, &line.DestinationLocationID, &line.Status,
			&history, &line.CreatedAt, &line.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan po line: %w", err)
		}
		if len(history) > 0 {
			if err := json.Unmarshal(history, &line.ReceivingHistory); err != nil {
				return nil, fmt.Errorf("unmarshal receiving history: %w", err)
			}
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	conditions := "TRUE"
	args := []interface{}{}
	argPos := 1
	if filter.SupplierID != nil {
		conditions += fmt.Sprintf(" AND supplier_id = $%d", argPos)
		args = append(args, *filter.SupplierID)
		argPos++
	}
	if filter.Status != nil {
		conditions += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM purchase_orders WHERE "+conditions, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchase orders: %w", err)
	}

	pagination := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := fmt.Sprintf(`SELECT id, order_number, supplier_id, status, expected_date, notes, submitted_at, approved_at, approved_by, closed_at, cancelled_at, cancelled_by, cancellation_reason, created_by, created_at, updated_at
FROM purchase_orders WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, conditions, argPos, argPos+1)
	args = append(args, pagination.PerPage, pagination.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		var o PurchaseOrder
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.SupplierID, &o.Status, &o.ExpectedDate, &o.Notes,
			&o.SubmittedAt, &o.ApprovedAt, &o.ApprovedBy, &o.ClosedAt,
			&o.CancelledAt, &o.CancelledBy, &o.CancellationReason,
			&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan purchase order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) UpdateOrder(ctx context.Context, order *PurchaseOrder) error {
	_, err := r.db.Exec(ctx, `UPDATE purchase_orders
SET status=$2, expected_date=$3, notes=$4, submitted_at=$5, approved_at=$6, approved_by=$7, closed_at=$8, cancelled_at=$9, cancelled_by=$10, cancellation_reason=$11, updated_at=NOW()
WHERE id=$1`,
		order.ID, order.Status, order.ExpectedDate, order.Notes,
		order.SubmittedAt, order.ApprovedAt, order.ApprovedBy, order.ClosedAt,
		order.CancelledAt, order.CancelledBy, order.CancellationReason)
	if err != nil {
		return fmt.Errorf("update purchase order: %w", err)
	}
	return nil
}

func (r *repository) UpdateLine(ctx context.Context, line *PurchaseOrderLine) error {
	history, err := json.Marshal(line.ReceivingHistory)
	if err != nil {
		return fmt.Errorf("marshal receiving history: %w", err)
	}
	_, err = r.db.Exec(ctx, `UPDATE purchase_order_lines
SET quantity_received=$2, quantity_rejected=$3, status=$4, receiving_history=$5, updated_at=NOW()
WHERE id=$1`,
		line.ID, line.QuantityReceived, line.QuantityRejected, line.Status, history)
	if err != nil {
		return fmt.Errorf("update purchase order line: %w", err)
	}
	return nil
}

func (r *repository) GenerateNumber(ctx context.Context, date time.Time) (string, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM purchase_orders WHERE created_at::date = $1::date`, date).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("generate po number: %w", err)
	}
	return fmt.Sprintf("PO-%s-%04d", date.Format("20060102"), seq), nil
}
