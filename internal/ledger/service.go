package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-wms/meridian/internal/shared"
)

// RepositoryPort abstracts repository usage for the strategy.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRow(ctx context.Context, productID, locationID int64, lot, batch string) (LedgerRow, error)
	ListAvailableByProduct(ctx context.Context, productID int64) ([]LedgerRow, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
	ListBalanceDrift(ctx context.Context) ([]BalanceDrift, error)
}

// ReferencePort verifies product and location ids before any mutation.
type ReferencePort interface {
	ProductExists(ctx context.Context, id int64) (bool, error)
	LocationExists(ctx context.Context, id int64) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementRecorder counts posted movements by type.
type MovementRecorder interface {
	RecordMovement(movementType string)
}

// BalanceDrift reports a (product, location) pair whose transaction running
// balance disagrees with the summed row quantities.
type BalanceDrift struct {
	ProductID      int64
	LocationID     int64
	OnHand         float64
	RunningBalance float64
}

// Strategy is the FIFO inventory strategy: the only component permitted to
// mutate ledger rows. Every operation runs inside one repository transaction;
// a failure anywhere rolls back all writes for that call.
type Strategy struct {
	repo        RepositoryPort
	refs        ReferencePort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MovementRecorder
	logger      *slog.Logger
	clock       func() time.Time
}

// StrategyConfig groups optional settings.
type StrategyConfig struct {
	Clock   func() time.Time
	Metrics MovementRecorder
}

// NewStrategy builds the strategy.
func NewStrategy(repo RepositoryPort, refs ReferencePort, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger, cfg StrategyConfig) *Strategy {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{repo: repo, refs: refs, audit: audit, idempotency: idem, metrics: cfg.Metrics, logger: logger, clock: clock}
}

// Receive posts an inbound receipt, find-or-creating the ledger row keyed by
// (product, location, lot, batch).
func (s *Strategy) Receive(ctx context.Context, input ReceiveInput) (Result, error) {
	return s.postInbound(ctx, input, MovementReceive)
}

// Return posts customer-returned stock back into a location. Identical to a
// receive apart from the movement type.
func (s *Strategy) Return(ctx context.Context, input ReceiveInput) (Result, error) {
	return s.postInbound(ctx, input, MovementReturn)
}

func (s *Strategy) postInbound(ctx context.Context, input ReceiveInput, movementType MovementType) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if err := s.checkRefs(ctx, input.ProductID, input.LocationID); err != nil {
		return Result{}, err
	}
	now := s.clock()
	receivedDate := input.Attrs.ReceivedDate
	if receivedDate.IsZero() {
		receivedDate = now
	}

	var result Result
	err := s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.LockProductLocation(ctx, input.ProductID, input.LocationID); err != nil {
				return err
			}
			row, err := tx.GetRowForUpdate(ctx, input.ProductID, input.LocationID, input.Attrs.Lot, input.Attrs.Batch)
			if errors.Is(err, ErrRowNotFound) {
				row = LedgerRow{
					ProductID:    input.ProductID,
					LocationID:   input.LocationID,
					Lot:          input.Attrs.Lot,
					Batch:        input.Attrs.Batch,
					UOM:          input.Attrs.UOM,
					UnitCost:     input.Attrs.UnitCost,
					ReceivedDate: receivedDate,
					ExpiryDate:   input.Attrs.ExpiryDate,
				}
				row.ID, err = tx.InsertRow(ctx, row)
			}
			if err != nil {
				return err
			}
			row.Quantity += input.Quantity
			if !input.Attrs.UnitCost.IsZero() {
				row.UnitCost = input.Attrs.UnitCost
			}
			row.recompute()
			if err := tx.UpdateRowQuantities(ctx, row); err != nil {
				return err
			}

			movement := Movement{
				Type:         movementType,
				ProductID:    input.ProductID,
				ToLocationID: input.LocationID,
				Quantity:     input.Quantity,
				Lot:          input.Attrs.Lot,
				Batch:        input.Attrs.Batch,
				Ref:          input.Ref,
				ActorID:      input.ActorID,
				Reason:       input.Note,
				PostedAt:     now,
			}
			if movement.ID, err = tx.InsertMovement(ctx, movement); err != nil {
				return err
			}

			balance, err := tx.LatestRunningBalance(ctx, input.ProductID, input.LocationID)
			if err != nil {
				return err
			}
			txn := Transaction{
				MovementID:     movement.ID,
				Type:           TransactionIncrement,
				ProductID:      input.ProductID,
				LocationID:     input.LocationID,
				Quantity:       input.Quantity,
				RunningBalance: balance + input.Quantity,
				UnitCost:       input.Attrs.UnitCost,
				TotalCost:      input.Attrs.UnitCost.Mul(decimal.NewFromFloat(input.Quantity)),
				Lot:            input.Attrs.Lot,
				Batch:          input.Attrs.Batch,
				ActorID:        input.ActorID,
			}
			if txn.ID, err = tx.InsertTransaction(ctx, txn); err != nil {
				return err
			}
			result = Result{Movement: movement, Rows: []LedgerRow{row}, Transactions: []Transaction{txn}}
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("ledger:%s", movementType), result)
	return result, nil
}

// Transfer moves stock between two locations. On-hand quantity is conserved
// across the source/destination pair.
func (s *Strategy) Transfer(ctx context.Context, input TransferInput) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if input.FromLocationID == input.ToLocationID {
		return Result{}, errors.New("ledger: source and destination location must differ")
	}
	if err := s.checkRefs(ctx, input.ProductID, input.FromLocationID); err != nil {
		return Result{}, err
	}
	if s.refs != nil {
		ok, err := s.refs.LocationExists(ctx, input.ToLocationID)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, &shared.ReferentialIntegrityError{Entity: "location", ID: input.ToLocationID}
		}
	}
	now := s.clock()

	var result Result
	err := s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			// Lock both sides in a stable order so concurrent opposing
			// transfers cannot deadlock.
			first, second := input.FromLocationID, input.ToLocationID
			if second < first {
				first, second = second, first
			}
			if err := tx.LockProductLocation(ctx, input.ProductID, first); err != nil {
				return err
			}
			if err := tx.LockProductLocation(ctx, input.ProductID, second); err != nil {
				return err
			}

			source, err := tx.GetRowForUpdate(ctx, input.ProductID, input.FromLocationID, input.Attrs.Lot, input.Attrs.Batch)
			if errors.Is(err, ErrRowNotFound) {
				return &InsufficientInventoryError{ProductID: input.ProductID, LocationID: input.FromLocationID, Requested: input.Quantity}
			}
			if err != nil {
				return err
			}
			if source.AvailableQuantity < input.Quantity {
				return &InsufficientInventoryError{
					ProductID:  input.ProductID,
					LocationID: input.FromLocationID,
					Requested:  input.Quantity,
					Available:  source.AvailableQuantity,
				}
			}

			movement := Movement{
				Type:           MovementTransfer,
				ProductID:      input.ProductID,
				FromLocationID: input.FromLocationID,
				ToLocationID:   input.ToLocationID,
				Quantity:       input.Quantity,
				Lot:            source.Lot,
				Batch:          source.Batch,
				Ref:            input.Ref,
				ActorID:        input.ActorID,
				Reason:         input.Note,
				PostedAt:       now,
			}
			if movement.ID, err = tx.InsertMovement(ctx, movement); err != nil {
				return err
			}

			source.Quantity -= input.Quantity
			source.recompute()
			if err := tx.UpdateRowQuantities(ctx, source); err != nil {
				return err
			}
			srcBalance, err := tx.LatestRunningBalance(ctx, input.ProductID, input.FromLocationID)
			if err != nil {
				return err
			}
			outTxn := Transaction{
				MovementID:     movement.ID,
				Type:           TransactionDecrement,
				ProductID:      input.ProductID,
				LocationID:     input.FromLocationID,
				Quantity:       input.Quantity,
				RunningBalance: srcBalance - input.Quantity,
				UnitCost:       source.UnitCost,
				TotalCost:      source.UnitCost.Mul(decimal.NewFromFloat(input.Quantity)),
				Lot:            source.Lot,
				Batch:          source.Batch,
				ActorID:        input.ActorID,
			}
			if outTxn.ID, err = tx.InsertTransaction(ctx, outTxn); err != nil {
				return err
			}

			// Destination row carries over the source's lot/batch and dating
			// metadata so the stock keeps its FIFO position.
			dest, err := tx.GetRowForUpdate(ctx, input.ProductID, input.ToLocationID, source.Lot, source.Batch)
			if errors.Is(err, ErrRowNotFound) {
				dest = LedgerRow{
					ProductID:    input.ProductID,
					LocationID:   input.ToLocationID,
					Lot:          source.Lot,
					Batch:        source.Batch,
					UOM:          source.UOM,
					UnitCost:     source.UnitCost,
					ReceivedDate: source.ReceivedDate,
					ExpiryDate:   source.ExpiryDate,
				}
				dest.ID, err = tx.InsertRow(ctx, dest)
			}
			if err != nil {
				return err
			}
			dest.Quantity += input.Quantity
			dest.recompute()
			if err := tx.UpdateRowQuantities(ctx, dest); err != nil {
				return err
			}
			dstBalance, err := tx.LatestRunningBalance(ctx, input.ProductID, input.ToLocationID)
			if err != nil {
				return err
			}
			inTxn := Transaction{
				MovementID:     movement.ID,
				Type:           TransactionIncrement,
				ProductID:      input.ProductID,
				LocationID:     input.ToLocationID,
				Quantity:       input.Quantity,
				RunningBalance: dstBalance + input.Quantity,
				UnitCost:       source.UnitCost,
				TotalCost:      source.UnitCost.Mul(decimal.NewFromFloat(input.Quantity)),
				Lot:            source.Lot,
				Batch:          source.Batch,
				ActorID:        input.ActorID,
			}
			if inTxn.ID, err = tx.InsertTransaction(ctx, inTxn); err != nil {
				return err
			}
			result = Result{Movement: movement, Rows: []LedgerRow{source, dest}, Transactions: []Transaction{outTxn, inTxn}}
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:TRANSFER", result)
	return result, nil
}

// Pick consumes stock FIFO: rows ordered by received date ascending with row
// id as the tie-break. An earlier-received row is never left untouched while
// a later one is consumed.
func (s *Strategy) Pick(ctx context.Context, input PickInput) (Result, error) {
	return s.postOutbound(ctx, input, MovementPick)
}

// Scrap removes damaged or expired stock using the same FIFO walk as a pick.
func (s *Strategy) Scrap(ctx context.Context, input PickInput) (Result, error) {
	return s.postOutbound(ctx, input, MovementScrap)
}

func (s *Strategy) postOutbound(ctx context.Context, input PickInput, movementType MovementType) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if err := s.checkRefs(ctx, input.ProductID, input.LocationID); err != nil {
		return Result{}, err
	}
	now := s.clock()

	var result Result
	err := s.withIdempotency(ctx, input.IdempotencyKey, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.LockProductLocation(ctx, input.ProductID, input.LocationID); err != nil {
				return err
			}
			rows, err := tx.ListAvailableRowsForUpdate(ctx, input.ProductID, input.LocationID, input.Attrs.Lot, input.Attrs.Batch)
			if err != nil {
				return err
			}
			var available float64
			for _, row := range rows {
				available += row.AvailableQuantity
			}
			if available < input.Quantity {
				return &InsufficientInventoryError{
					ProductID:  input.ProductID,
					LocationID: input.LocationID,
					Requested:  input.Quantity,
					Available:  available,
				}
			}

			movement := Movement{
				Type:           movementType,
				ProductID:      input.ProductID,
				FromLocationID: input.LocationID,
				Quantity:       input.Quantity,
				Lot:            input.Attrs.Lot,
				Batch:          input.Attrs.Batch,
				Ref:            input.Ref,
				ActorID:        input.ActorID,
				Reason:         input.Note,
				PostedAt:       now,
			}
			if movement.ID, err = tx.InsertMovement(ctx, movement); err != nil {
				return err
			}

			balance, err := tx.LatestRunningBalance(ctx, input.ProductID, input.LocationID)
			if err != nil {
				return err
			}

			remaining := input.Quantity
			var layers []FIFOLayer
			var touched []LedgerRow
			var txns []Transaction
			for _, row := range rows {
				if remaining <= 0 {
					break
				}
				take := math.Min(remaining, row.AvailableQuantity)
				row.Quantity -= take
				row.recompute()
				if err := tx.UpdateRowQuantities(ctx, row); err != nil {
					return err
				}
				balance -= take
				txn := Transaction{
					MovementID:     movement.ID,
					Type:           TransactionDecrement,
					ProductID:      input.ProductID,
					LocationID:     input.LocationID,
					Quantity:       take,
					RunningBalance: balance,
					UnitCost:       row.UnitCost,
					TotalCost:      row.UnitCost.Mul(decimal.NewFromFloat(take)),
					Lot:            row.Lot,
					Batch:          row.Batch,
					ActorID:        input.ActorID,
				}
				if txn.ID, err = tx.InsertTransaction(ctx, txn); err != nil {
					return err
				}
				layers = append(layers, FIFOLayer{
					LedgerRowID:  row.ID,
					Lot:          row.Lot,
					Batch:        row.Batch,
					Quantity:     take,
					ReceivedDate: row.ReceivedDate,
				})
				touched = append(touched, row)
				txns = append(txns, txn)
				remaining -= take
			}
			if err := tx.SetMovementLayers(ctx, movement.ID, layers); err != nil {
				return err
			}
			movement.Layers = layers
			result = Result{Movement: movement, Rows: touched, Transactions: txns}
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("ledger:%s", movementType), result)
	return result, nil
}

// Adjust sets a row quantity to an absolute value. The movement records the
// magnitude of the change and the mandatory reason. When the new quantity
// falls below the reserved quantity the reservation is floored to the new
// quantity and a warning is logged, so available never goes negative.
func (s *Strategy) Adjust(ctx context.Context, input AdjustInput) (Result, error) {
	if input.NewQuantity < 0 {
		return Result{}, ErrNegativeQuantity
	}
	if input.Reason == "" {
		return Result{}, ErrReasonRequired
	}
	if err := s.checkRefs(ctx, input.ProductID, input.LocationID); err != nil {
		return Result{}, err
	}
	now := s.clock()

	var result Result
	var flooredReserved bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockProductLocation(ctx, input.ProductID, input.LocationID); err != nil {
			return err
		}
		row, err := tx.GetRowForUpdate(ctx, input.ProductID, input.LocationID, input.Attrs.Lot, input.Attrs.Batch)
		if err != nil {
			return err
		}
		delta := input.NewQuantity - row.Quantity
		if delta == 0 {
			return ErrNoAdjustment
		}
		movementType := MovementAdjustIncrease
		if delta < 0 {
			movementType = MovementAdjustDecrease
		}

		row.Quantity = input.NewQuantity
		if row.ReservedQuantity > row.Quantity {
			flooredReserved = true
			row.ReservedQuantity = row.Quantity
		}
		row.recompute()
		if err := tx.UpdateRowQuantities(ctx, row); err != nil {
			return err
		}

		movement := Movement{
			Type:           movementType,
			ProductID:      input.ProductID,
			FromLocationID: input.LocationID,
			Quantity:       math.Abs(delta),
			Lot:            row.Lot,
			Batch:          row.Batch,
			Ref:            ManualRef(),
			ActorID:        input.ActorID,
			Reason:         input.Reason,
			PostedAt:       now,
		}
		if movement.ID, err = tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		balance, err := tx.LatestRunningBalance(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return err
		}
		txn := Transaction{
			MovementID:     movement.ID,
			Type:           TransactionAdjust,
			ProductID:      input.ProductID,
			LocationID:     input.LocationID,
			Quantity:       math.Abs(delta),
			RunningBalance: balance + delta,
			UnitCost:       row.UnitCost,
			TotalCost:      row.UnitCost.Mul(decimal.NewFromFloat(math.Abs(delta))),
			Lot:            row.Lot,
			Batch:          row.Batch,
			ActorID:        input.ActorID,
		}
		if txn.ID, err = tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		result = Result{Movement: movement, Rows: []LedgerRow{row}, Transactions: []Transaction{txn}}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if flooredReserved {
		s.logger.Warn("adjust floored reserved quantity",
			slog.Int64("product_id", input.ProductID),
			slog.Int64("location_id", input.LocationID),
			slog.Float64("new_quantity", input.NewQuantity))
	}
	s.recordAudit(ctx, input.ActorID, "ledger:ADJUST", result)
	return result, nil
}

// Reserve places a hard hold against the available quantity of the row
// identified by (product, location, lot, batch). Reservation moves no
// on-hand stock, so the running balance is unchanged.
func (s *Strategy) Reserve(ctx context.Context, input ReserveInput) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if err := s.checkRefs(ctx, input.ProductID, input.LocationID); err != nil {
		return Result{}, err
	}
	now := s.clock()

	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockProductLocation(ctx, input.ProductID, input.LocationID); err != nil {
			return err
		}
		row, err := tx.GetRowForUpdate(ctx, input.ProductID, input.LocationID, input.Attrs.Lot, input.Attrs.Batch)
		if errors.Is(err, ErrRowNotFound) {
			return &InsufficientInventoryError{ProductID: input.ProductID, LocationID: input.LocationID, Requested: input.Quantity}
		}
		if err != nil {
			return err
		}
		if input.Quantity > row.AvailableQuantity {
			return &InsufficientInventoryError{
				ProductID:  input.ProductID,
				LocationID: input.LocationID,
				Requested:  input.Quantity,
				Available:  row.AvailableQuantity,
			}
		}
		row.ReservedQuantity += input.Quantity
		row.recompute()
		if err := tx.UpdateRowQuantities(ctx, row); err != nil {
			return err
		}
		movement := Movement{
			Type:           MovementReserve,
			ProductID:      input.ProductID,
			FromLocationID: input.LocationID,
			Quantity:       input.Quantity,
			Lot:            row.Lot,
			Batch:          row.Batch,
			Ref:            input.Ref,
			ActorID:        input.ActorID,
			PostedAt:       now,
		}
		if movement.ID, err = tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		balance, err := tx.LatestRunningBalance(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return err
		}
		txn := Transaction{
			MovementID:     movement.ID,
			Type:           TransactionReserve,
			ProductID:      input.ProductID,
			LocationID:     input.LocationID,
			Quantity:       input.Quantity,
			RunningBalance: balance,
			UnitCost:       row.UnitCost,
			Lot:            row.Lot,
			Batch:          row.Batch,
			ActorID:        input.ActorID,
		}
		if txn.ID, err = tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		result = Result{Movement: movement, Rows: []LedgerRow{row}, Transactions: []Transaction{txn}}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:RESERVE", result)
	return result, nil
}

// Unreserve releases up to the currently reserved quantity. Releasing more
// than is reserved is clamped rather than rejected.
func (s *Strategy) Unreserve(ctx context.Context, input UnreserveInput) (Result, error) {
	if input.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if err := s.checkRefs(ctx, input.ProductID, input.LocationID); err != nil {
		return Result{}, err
	}
	now := s.clock()

	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockProductLocation(ctx, input.ProductID, input.LocationID); err != nil {
			return err
		}
		row, err := tx.GetRowForUpdate(ctx, input.ProductID, input.LocationID, input.Attrs.Lot, input.Attrs.Batch)
		if err != nil {
			return err
		}
		release := math.Min(input.Quantity, row.ReservedQuantity)
		row.ReservedQuantity -= release
		row.recompute()
		if err := tx.UpdateRowQuantities(ctx, row); err != nil {
			return err
		}
		movement := Movement{
			Type:           MovementUnreserve,
			ProductID:      input.ProductID,
			FromLocationID: input.LocationID,
			Quantity:       release,
			Lot:            row.Lot,
			Batch:          row.Batch,
			Ref:            input.Ref,
			ActorID:        input.ActorID,
			PostedAt:       now,
		}
		if movement.ID, err = tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		balance, err := tx.LatestRunningBalance(ctx, input.ProductID, input.LocationID)
		if err != nil {
			return err
		}
		txn := Transaction{
			MovementID:     movement.ID,
			Type:           TransactionUnreserve,
			ProductID:      input.ProductID,
			LocationID:     input.LocationID,
			Quantity:       release,
			RunningBalance: balance,
			UnitCost:       row.UnitCost,
			Lot:            row.Lot,
			Batch:          row.Batch,
			ActorID:        input.ActorID,
		}
		if txn.ID, err = tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		result = Result{Movement: movement, Rows: []LedgerRow{row}, Transactions: []Transaction{txn}}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger:UNRESERVE", result)
	return result, nil
}

// AvailableRows lists rows with available stock for a product across every
// location, FIFO ordered. This is the allocation engine's read path.
func (s *Strategy) AvailableRows(ctx context.Context, productID int64) ([]LedgerRow, error) {
	if productID == 0 {
		return nil, errors.New("ledger: product required")
	}
	return s.repo.ListAvailableByProduct(ctx, productID)
}

// GetStockCard lists the movement history for a (product, location) pair
// with running balances.
func (s *Strategy) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if filter.ProductID == 0 || filter.LocationID == 0 {
		return nil, errors.New("ledger: product and location required")
	}
	return s.repo.GetStockCard(ctx, filter)
}

// VerifyIntegrity reports (product, location) pairs whose latest running
// balance disagrees with the summed row quantities. Drift means a write
// bypassed the strategy and warrants investigation.
func (s *Strategy) VerifyIntegrity(ctx context.Context) ([]BalanceDrift, error) {
	drift, err := s.repo.ListBalanceDrift(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drift {
		s.logger.Warn("ledger balance drift",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("location_id", d.LocationID),
			slog.Float64("on_hand", d.OnHand),
			slog.Float64("running_balance", d.RunningBalance))
	}
	return drift, nil
}

func (s *Strategy) checkRefs(ctx context.Context, productID, locationID int64) error {
	if productID == 0 || locationID == 0 {
		return errors.New("ledger: product and location required")
	}
	if s.refs == nil {
		return nil
	}
	ok, err := s.refs.ProductExists(ctx, productID)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.ReferentialIntegrityError{Entity: "product", ID: productID}
	}
	ok, err = s.refs.LocationExists(ctx, locationID)
	if err != nil {
		return err
	}
	if !ok {
		return &shared.ReferentialIntegrityError{Entity: "location", ID: locationID}
	}
	return nil
}

func (s *Strategy) withIdempotency(ctx context.Context, key string, fn func() error) error {
	if s.idempotency == nil || key == "" {
		return fn()
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = s.idempotency.Delete(ctx, key)
		return err
	}
	return nil
}

func (s *Strategy) recordAudit(ctx context.Context, actorID int64, action string, result Result) {
	if s.metrics != nil {
		s.metrics.RecordMovement(string(result.Movement.Type))
	}
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntityLedger,
		EntityID: fmt.Sprintf("movement:%d", result.Movement.ID),
		Meta: map[string]any{
			"movement_type": string(result.Movement.Type),
			"product_id":    result.Movement.ProductID,
			"quantity":      result.Movement.Quantity,
			"reference":     result.Movement.Ref.String(),
		},
	})
}
