package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian/internal/ledger"
	"github.com/meridian-wms/meridian/internal/shipping"
)

type memoryOrderRepo struct {
	orders map[int64]*SalesOrder
	nextID int64
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: make(map[int64]*SalesOrder)}
}

func (r *memoryOrderRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryOrderRepo) Create(ctx context.Context, order SalesOrder) (int64, error) {
	order.ID = r.id()
	order.CreatedAt = time.Now()
	r.orders[order.ID] = &order
	return order.ID, nil
}

func (r *memoryOrderRepo) InsertLine(ctx context.Context, line SalesOrderLine) (int64, error) {
	order, ok := r.orders[line.SalesOrderID]
	if !ok {
		return 0, fmt.Errorf("unknown order %d", line.SalesOrderID)
	}
	line.ID = r.id()
	order.Lines = append(order.Lines, line)
	return line.ID, nil
}

// Get returns a deep copy so the service mutates its own view, as it would
// with rows scanned from the database.
func (r *memoryOrderRepo) Get(ctx context.Context, id int64) (*SalesOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d not found", id)
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}
	var clone SalesOrder
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

func (r *memoryOrderRepo) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	var out []SalesOrder
	for _, order := range r.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != nil && order.CustomerID != *filter.CustomerID {
			continue
		}
		out = append(out, *order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryOrderRepo) UpdateOrder(ctx context.Context, order *SalesOrder) error {
	stored, ok := r.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %d not found", order.ID)
	}
	lines := stored.Lines
	*stored = *order
	stored.Lines = lines
	return nil
}

func (r *memoryOrderRepo) UpdateLine(ctx context.Context, line *SalesOrderLine) error {
	order, ok := r.orders[line.SalesOrderID]
	if !ok {
		return fmt.Errorf("order %d not found", line.SalesOrderID)
	}
	for i := range order.Lines {
		if order.Lines[i].ID == line.ID {
			order.Lines[i] = *line
			return nil
		}
	}
	return fmt.Errorf("line %d not found", line.ID)
}

func (r *memoryOrderRepo) GenerateNumber(ctx context.Context, date time.Time) (string, error) {
	return fmt.Sprintf("SO-%s-%04d", date.Format("20060102"), r.nextID+1), nil
}

type fakeInventory struct {
	rows  []ledger.LedgerRow
	picks []ledger.PickInput
}

func (f *fakeInventory) AvailableRows(ctx context.Context, productID int64) ([]ledger.LedgerRow, error) {
	var out []ledger.LedgerRow
	for _, row := range f.rows {
		if row.ProductID == productID && row.AvailableQuantity > 0 {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ReceivedDate.Equal(out[j].ReceivedDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedDate.Before(out[j].ReceivedDate)
	})
	return out, nil
}

func (f *fakeInventory) Pick(ctx context.Context, input ledger.PickInput) (ledger.Result, error) {
	var available float64
	for _, row := range f.rows {
		if row.ProductID == input.ProductID && row.LocationID == input.LocationID {
			available += row.AvailableQuantity
		}
	}
	if available < input.Quantity {
		return ledger.Result{}, &ledger.InsufficientInventoryError{
			ProductID:  input.ProductID,
			LocationID: input.LocationID,
			Requested:  input.Quantity,
			Available:  available,
		}
	}
	remaining := input.Quantity
	for i := range f.rows {
		row := &f.rows[i]
		if row.ProductID != input.ProductID || row.LocationID != input.LocationID || remaining <= 0 {
			continue
		}
		take := row.AvailableQuantity
		if take > remaining {
			take = remaining
		}
		row.Quantity -= take
		row.AvailableQuantity -= take
		remaining -= take
	}
	f.picks = append(f.picks, input)
	return ledger.Result{Movement: ledger.Movement{ID: int64(len(f.picks)), Type: ledger.MovementPick}}, nil
}

type fakeProducts struct {
	weights map[int64]float64
}

func (f *fakeProducts) ProductWeight(ctx context.Context, productID int64) (float64, error) {
	return f.weights[productID], nil
}

func availRow(id, productID, locationID int64, qty float64, received time.Time) ledger.LedgerRow {
	return ledger.LedgerRow{
		ID:                id,
		ProductID:         productID,
		LocationID:        locationID,
		Quantity:          qty,
		AvailableQuantity: qty,
		ReceivedDate:      received,
	}
}

func newTestService(t *testing.T) (*Service, *memoryOrderRepo, *fakeInventory) {
	t.Helper()
	repo := newMemoryOrderRepo()
	inv := &fakeInventory{}
	shipper := shipping.NewFlatRateProvider(shipping.FlatRateConfig{
		BaseFee: decimal.RequireFromString("5.00"),
	})
	products := &fakeProducts{weights: map[int64]float64{1: 0.5, 2: 2.0}}
	clock := func() time.Time { return time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC) }
	svc := NewService(repo, inv, shipper, products, nil, nil, nil, ServiceConfig{Clock: clock})
	return svc, repo, inv
}

func createTestOrder(t *testing.T, svc *Service, lines ...CreateOrderLineRequest) *SalesOrder {
	t.Helper()
	if len(lines) == 0 {
		lines = []CreateOrderLineRequest{{ProductID: 1, Quantity: 10, UOM: "EA", UnitPrice: 9.99}}
	}
	order, err := svc.Create(context.Background(), CreateOrderRequest{CustomerID: 100, Lines: lines}, 1)
	require.NoError(t, err)
	return order
}

func TestCreateOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	order := createTestOrder(t, svc,
		CreateOrderLineRequest{ProductID: 1, Quantity: 10, UOM: "EA", UnitPrice: 9.99},
		CreateOrderLineRequest{ProductID: 2, Quantity: 2, UOM: "EA", UnitPrice: 50},
	)

	require.Equal(t, OrderStatusPending, order.Status)
	require.Equal(t, PaymentStatusUnpaid, order.PaymentStatus)
	require.NotEmpty(t, order.OrderNumber)
	require.Len(t, order.Lines, 2)
	require.Equal(t, LineStatusPending, order.Lines[0].Status)
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("199.90")), "total %s", order.TotalAmount)
}

func TestRecordPickAdvancesLineAndOrder(t *testing.T) {
	svc, repo, inv := newTestService(t)
	inv.rows = []ledger.LedgerRow{availRow(1, 1, 10, 100, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))}
	order := createTestOrder(t, svc)

	updated, err := svc.RecordPick(context.Background(), RecordPickInput{
		OrderID:    order.ID,
		LineID:     order.Lines[0].ID,
		LocationID: 10,
		Quantity:   4,
		ActorID:    7,
	})
	require.NoError(t, err)

	line := updated.Lines[0]
	require.Equal(t, LineStatusPicking, line.Status)
	require.InDelta(t, 4.0, line.QuantityPicked, 0.0001)
	require.Len(t, line.PickingHistory, 1)
	require.Equal(t, int64(7), line.PickingHistory[0].ActorID)
	require.Equal(t, OrderStatusPicking, updated.Status)

	// The ledger pick carries the order reference.
	require.Len(t, inv.picks, 1)
	require.Equal(t, ledger.OrderRef(order.ID), inv.picks[0].Ref)

	updated, err = svc.RecordPick(context.Background(), RecordPickInput{
		OrderID:    order.ID,
		LineID:     order.Lines[0].ID,
		LocationID: 10,
		Quantity:   6,
		ActorID:    7,
	})
	require.NoError(t, err)
	require.Equal(t, LineStatusPicked, updated.Lines[0].Status)
	require.Equal(t, OrderStatusPicked, updated.Status)

	stored, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.0, stored.Lines[0].QuantityPicked, 0.0001)
}

func TestRecordPickInsufficientInventory(t *testing.T) {
	svc, _, inv := newTestService(t)
	inv.rows = []ledger.LedgerRow{availRow(1, 1, 10, 3, time.Now())}
	order := createTestOrder(t, svc)

	_, err := svc.RecordPick(context.Background(), RecordPickInput{
		OrderID:    order.ID,
		LineID:     order.Lines[0].ID,
		LocationID: 10,
		Quantity:   5,
		ActorID:    7,
	})
	var insufficient *ledger.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
}

func TestPackRequiresPick(t *testing.T) {
	svc, _, _ := newTestService(t)
	order := createTestOrder(t, svc)

	_, err := svc.PackLine(context.Background(), order.ID, order.Lines[0].ID, 1)
	require.ErrorIs(t, err, ErrNothingPicked)
}

func TestPackPartiallyPickedLine(t *testing.T) {
	svc, _, inv := newTestService(t)
	inv.rows = []ledger.LedgerRow{availRow(1, 1, 10, 100, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))}
	order := createTestOrder(t, svc)
	ctx := context.Background()

	// 4 of 10 picked: the line sits in picking, but anything picked may be
	// packed without waiting for the remainder.
	_, err := svc.RecordPick(ctx, RecordPickInput{OrderID: order.ID, LineID: order.Lines[0].ID, LocationID: 10, Quantity: 4, ActorID: 7})
	require.NoError(t, err)

	updated, err := svc.PackLine(ctx, order.ID, order.Lines[0].ID, 7)
	require.NoError(t, err)
	line := updated.Lines[0]
	require.Equal(t, LineStatusPacked, line.Status)
	require.InDelta(t, 4.0, line.QuantityPicked, 0.0001)
	require.Len(t, line.PackingHistory, 1)
	require.InDelta(t, 4.0, line.PackingHistory[0].Quantity, 0.0001)
	require.Equal(t, OrderStatusPacked, updated.Status)
}

func TestShipRequiresPackedLines(t *testing.T) {
	svc, _, _ := newTestService(t)
	order := createTestOrder(t, svc)

	_, err := svc.Ship(context.Background(), order.ID, 1)
	require.ErrorIs(t, err, ErrNotPacked)
}

func TestFullFulfilmentFlow(t *testing.T) {
	svc, _, inv := newTestService(t)
	inv.rows = []ledger.LedgerRow{availRow(1, 1, 10, 100, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))}
	order := createTestOrder(t, svc)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, order.ID, 1)
	require.NoError(t, err)

	_, err = svc.RecordPick(ctx, RecordPickInput{OrderID: order.ID, LineID: order.Lines[0].ID, LocationID: 10, Quantity: 10, ActorID: 7})
	require.NoError(t, err)

	updated, err := svc.PackLine(ctx, order.ID, order.Lines[0].ID, 7)
	require.NoError(t, err)
	require.Equal(t, LineStatusPacked, updated.Lines[0].Status)
	require.Equal(t, OrderStatusPacked, updated.Status)
	require.NotNil(t, updated.PackedAt)

	updated, err = svc.Ship(ctx, order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, OrderStatusShipped, updated.Status)
	require.NotNil(t, updated.ShippedDate)
	require.NotNil(t, updated.TrackingNumber)
	line := updated.Lines[0]
	require.Equal(t, LineStatusShipped, line.Status)
	require.InDelta(t, 10.0, line.QuantityShipped, 0.0001)
	require.Len(t, line.ShippingHistory, 1)
	require.Equal(t, *updated.TrackingNumber, line.ShippingHistory[0].TrackingNumber)

	updated, err = svc.MarkDelivered(ctx, order.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, updated.ActualDeliveryDate)

	updated, err = svc.Complete(ctx, order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, updated.Status)
}

func TestCancelAfterShipFails(t *testing.T) {
	svc, _, inv := newTestService(t)
	inv.rows = []ledger.LedgerRow{availRow(1, 1, 10, 100, time.Now())}
	order := createTestOrder(t, svc)
	ctx := context.Background()

	_, err := svc.RecordPick(ctx, RecordPickInput{OrderID: order.ID, LineID: order.Lines[0].ID, LocationID: 10, Quantity: 10, ActorID: 1})
	require.NoError(t, err)
	_, err = svc.PackLine(ctx, order.ID, order.Lines[0].ID, 1)
	require.NoError(t, err)
	_, err = svc.Ship(ctx, order.ID, 1)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, order.ID, 1, "changed mind")
	require.ErrorIs(t, err, ErrAlreadyShipped)
}

func TestCancelVoidsOrderAndLines(t *testing.T) {
	svc, _, _ := newTestService(t)
	order := createTestOrder(t, svc)

	updated, err := svc.Cancel(context.Background(), order.ID, 3, "duplicate order")
	require.NoError(t, err)
	require.Equal(t, OrderStatusCancelled, updated.Status)
	require.Equal(t, "duplicate order", *updated.CancellationReason)
	require.Equal(t, LineStatusCancelled, updated.Lines[0].Status)
}

func TestHoldBlocksFulfilment(t *testing.T) {
	svc, _, inv := newTestService(t)
	inv.rows = []ledger.LedgerRow{availRow(1, 1, 10, 100, time.Now())}
	order := createTestOrder(t, svc)
	ctx := context.Background()

	held, err := svc.Hold(ctx, order.ID, 1, "credit check")
	require.NoError(t, err)
	require.Equal(t, OrderStatusOnHold, held.Status)

	_, err = svc.RecordPick(ctx, RecordPickInput{OrderID: order.ID, LineID: order.Lines[0].ID, LocationID: 10, Quantity: 1, ActorID: 1})
	require.ErrorIs(t, err, ErrOrderNotActive)

	released, err := svc.Release(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, OrderStatusPending, released.Status)
}

func TestMarkPaid(t *testing.T) {
	svc, _, _ := newTestService(t)
	order := createTestOrder(t, svc)
	ctx := context.Background()

	_, err := svc.transition(ctx, order.ID, 1, OrderStatusAwaitingPayment, "", "order:test")
	require.NoError(t, err)

	updated, err := svc.MarkPaid(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPaid, updated.PaymentStatus)
	require.Equal(t, OrderStatusPaid, updated.Status)
}
