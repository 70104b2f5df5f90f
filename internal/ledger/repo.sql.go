package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the strategy.
// Every mutation of ledger rows, movements and transactions goes through an
// implementation of this interface inside one WithTx call.
type TxRepository interface {
	LockProductLocation(ctx context.Context, productID, locationID int64) error
	GetRowForUpdate(ctx context.Context, productID, locationID int64, lot, batch string) (LedgerRow, error)
	ListAvailableRowsForUpdate(ctx context.Context, productID, locationID int64, lot, batch string) ([]LedgerRow, error)
	InsertRow(ctx context.Context, row LedgerRow) (int64, error)
	UpdateRowQuantities(ctx context.Context, row LedgerRow) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	SetMovementLayers(ctx context.Context, movementID int64, layers []FIFOLayer) error
	InsertTransaction(ctx context.Context, txn Transaction) (int64, error)
	LatestRunningBalance(ctx context.Context, productID, locationID int64) (float64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const rowColumns = `id, product_id, location_id, lot, batch, quantity, reserved_quantity, available_quantity, uom, unit_cost, received_date, expiry_date, created_at, updated_at`

// GetRow loads a single ledger row by its identity tuple.
func (r *Repository) GetRow(ctx context.Context, productID, locationID int64, lot, batch string) (LedgerRow, error) {
	if r == nil {
		return LedgerRow{}, errors.New("ledger repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM ledger_rows
WHERE product_id=$1 AND location_id=$2 AND lot=$3 AND batch=$4`, productID, locationID, lot, batch)
	return scanRow(row)
}

// ListAvailableByProduct returns rows with available stock across all
// locations, FIFO ordered. Allocation reads availability through this query
// without holding row locks.
func (r *Repository) ListAvailableByProduct(ctx context.Context, productID int64) ([]LedgerRow, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+rowColumns+` FROM ledger_rows
WHERE product_id=$1 AND available_quantity > 0
ORDER BY received_date ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

// GetStockCard lists per-location bookkeeping lines with running balances.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT t.movement_id, m.movement_type, t.tx_type, t.quantity, t.running_balance, t.unit_cost, t.lot, t.batch, m.posted_at
FROM ledger_transactions t
JOIN ledger_movements m ON m.id = t.movement_id
WHERE t.product_id=$1 AND t.location_id=$2 AND m.posted_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY t.id ASC
LIMIT $5`, filter.ProductID, filter.LocationID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []StockCardEntry{}
	for rows.Next() {
		var entry StockCardEntry
		var txType TransactionType
		var qty float64
		if err := rows.Scan(&entry.MovementID, &entry.MovementType, &txType, &qty, &entry.RunningBalance, &entry.UnitCost, &entry.Lot, &entry.Batch, &entry.PostedAt); err != nil {
			return nil, err
		}
		switch {
		case txType == TransactionDecrement:
			entry.QtyOut = qty
		case txType == TransactionAdjust && entry.MovementType == MovementAdjustDecrease:
			entry.QtyOut = qty
		case txType == TransactionIncrement || txType == TransactionAdjust:
			entry.QtyIn = qty
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListBalanceDrift compares summed row quantities with the latest running
// balance per (product, location).
func (r *Repository) ListBalanceDrift(ctx context.Context) ([]BalanceDrift, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT lr.product_id, lr.location_id, SUM(lr.quantity) AS on_hand,
COALESCE((SELECT t.running_balance FROM ledger_transactions t
          WHERE t.product_id = lr.product_id AND t.location_id = lr.location_id
          ORDER BY t.id DESC LIMIT 1), 0) AS running_balance
FROM ledger_rows lr
GROUP BY lr.product_id, lr.location_id
HAVING ABS(SUM(lr.quantity) - COALESCE((SELECT t.running_balance FROM ledger_transactions t
          WHERE t.product_id = lr.product_id AND t.location_id = lr.location_id
          ORDER BY t.id DESC LIMIT 1), 0)) > 0.0001`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	drift := []BalanceDrift{}
	for rows.Next() {
		var d BalanceDrift
		if err := rows.Scan(&d.ProductID, &d.LocationID, &d.OnHand, &d.RunningBalance); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

func (r *txRepository) LockProductLocation(ctx context.Context, productID, locationID int64) error {
	// Advisory lock serialises running-balance computation for the pair even
	// when concurrent writers touch different lot rows.
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(productID), int32(locationID))
	return err
}

func (r *txRepository) GetRowForUpdate(ctx context.Context, productID, locationID int64, lot, batch string) (LedgerRow, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+rowColumns+` FROM ledger_rows
WHERE product_id=$1 AND location_id=$2 AND lot=$3 AND batch=$4
FOR UPDATE`, productID, locationID, lot, batch)
	return scanRow(row)
}

func (r *txRepository) ListAvailableRowsForUpdate(ctx context.Context, productID, locationID int64, lot, batch string) ([]LedgerRow, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+rowColumns+` FROM ledger_rows
WHERE product_id=$1 AND location_id=$2
  AND ($3 = '' OR lot = $3)
  AND ($4 = '' OR batch = $4)
  AND available_quantity > 0
ORDER BY received_date ASC, id ASC
FOR UPDATE`, productID, locationID, lot, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func (r *txRepository) InsertRow(ctx context.Context, row LedgerRow) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_rows (product_id, location_id, lot, batch, quantity, reserved_quantity, available_quantity, uom, unit_cost, received_date, expiry_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW()) RETURNING id`,
		row.ProductID, row.LocationID, row.Lot, row.Batch, row.Quantity, row.ReservedQuantity, row.AvailableQuantity, row.UOM, row.UnitCost, row.ReceivedDate, nullTime(row.ExpiryDate)).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateRowQuantities(ctx context.Context, row LedgerRow) error {
	_, err := r.tx.Exec(ctx, `UPDATE ledger_rows
SET quantity=$2, reserved_quantity=$3, available_quantity=$4, unit_cost=$5, updated_at=NOW()
WHERE id=$1`, row.ID, row.Quantity, row.ReservedQuantity, row.AvailableQuantity, row.UnitCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_movements (movement_type, product_id, from_location_id, to_location_id, quantity, lot, batch, ref_kind, ref_id, actor_id, reason, posted_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id`,
		string(movement.Type), movement.ProductID, nullInt(movement.FromLocationID), nullInt(movement.ToLocationID),
		movement.Quantity, movement.Lot, movement.Batch, string(movement.Ref.Kind), nullInt(movement.Ref.ID),
		nullInt(movement.ActorID), movement.Reason, movement.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) SetMovementLayers(ctx context.Context, movementID int64, layers []FIFOLayer) error {
	data, err := json.Marshal(layers)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE ledger_movements SET layers=$2 WHERE id=$1`, movementID, data)
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_transactions (movement_id, tx_type, product_id, location_id, quantity, running_balance, unit_cost, total_cost, lot, batch, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW()) RETURNING id`,
		txn.MovementID, string(txn.Type), txn.ProductID, txn.LocationID, txn.Quantity, txn.RunningBalance,
		txn.UnitCost, txn.TotalCost, txn.Lot, txn.Batch, nullInt(txn.ActorID)).Scan(&id)
	return id, err
}

func (r *txRepository) LatestRunningBalance(ctx context.Context, productID, locationID int64) (float64, error) {
	var balance float64
	err := r.tx.QueryRow(ctx, `SELECT running_balance FROM ledger_transactions
WHERE product_id=$1 AND location_id=$2 AND tx_type IN ('INCREMENT','DECREMENT','ADJUST')
ORDER BY id DESC LIMIT 1`, productID, locationID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func scanRow(row pgx.Row) (LedgerRow, error) {
	var lr LedgerRow
	var expiry *time.Time
	err := row.Scan(&lr.ID, &lr.ProductID, &lr.LocationID, &lr.Lot, &lr.Batch, &lr.Quantity, &lr.ReservedQuantity,
		&lr.AvailableQuantity, &lr.UOM, &lr.UnitCost, &lr.ReceivedDate, &expiry, &lr.CreatedAt, &lr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LedgerRow{}, ErrRowNotFound
		}
		return LedgerRow{}, err
	}
	if expiry != nil {
		lr.ExpiryDate = *expiry
	}
	return lr, nil
}

func collectRows(rows pgx.Rows) ([]LedgerRow, error) {
	result := []LedgerRow{}
	for rows.Next() {
		var lr LedgerRow
		var expiry *time.Time
		if err := rows.Scan(&lr.ID, &lr.ProductID, &lr.LocationID, &lr.Lot, &lr.Batch, &lr.Quantity, &lr.ReservedQuantity,
			&lr.AvailableQuantity, &lr.UOM, &lr.UnitCost, &lr.ReceivedDate, &expiry, &lr.CreatedAt, &lr.UpdatedAt); err != nil {
			return nil, err
		}
		if expiry != nil {
			lr.ExpiryDate = *expiry
		}
		result = append(result, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
