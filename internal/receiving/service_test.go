package receiving

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian/internal/ledger"
	"github.com/meridian-wms/meridian/internal/shared"
)

var testNow = time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC)

type memoryPORepo struct {
	orders map[int64]*PurchaseOrder
	nextID int64
}

func newMemoryPORepo() *memoryPORepo {
	return &memoryPORepo{orders: map[int64]*PurchaseOrder{}, nextID: 1}
}

func (r *memoryPORepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryPORepo) Create(_ context.Context, order PurchaseOrder) (int64, error) {
	order.ID = r.nextID
	r.nextID++
	order.CreatedAt = testNow
	order.UpdatedAt = testNow
	r.orders[order.ID] = &order
	return order.ID, nil
}

func (r *memoryPORepo) InsertLine(_ context.Context, line PurchaseOrderLine) (int64, error) {
	line.ID = r.nextID
	r.nextID++
	order := r.orders[line.PurchaseOrderID]
	order.Lines = append(order.Lines, line)
	return line.ID, nil
}

// Get returns a deep clone so services mutate their own copy, the way a
// row scan would behave.
func (r *memoryPORepo) Get(_ context.Context, id int64) (*PurchaseOrder, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}
	var clone PurchaseOrder
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

func (r *memoryPORepo) List(_ context.Context, _ ListFilter) ([]PurchaseOrder, int, error) {
	out := make([]PurchaseOrder, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, *order)
	}
	return out, len(out), nil
}

func (r *memoryPORepo) UpdateOrder(_ context.Context, order *PurchaseOrder) error {
	stored, ok := r.orders[order.ID]
	if !ok {
		return shared.ErrNotFound
	}
	lines := stored.Lines
	*stored = *order
	stored.Lines = lines
	return nil
}

func (r *memoryPORepo) UpdateLine(_ context.Context, line *PurchaseOrderLine) error {
	order, ok := r.orders[line.PurchaseOrderID]
	if !ok {
		return shared.ErrNotFound
	}
	for i := range order.Lines {
		if order.Lines[i].ID == line.ID {
			order.Lines[i] = *line
			return nil
		}
	}
	return ErrLineNotFound
}

func (r *memoryPORepo) GenerateNumber(_ context.Context, date time.Time) (string, error) {
	return "PO-" + date.Format("20060102") + "-0001", nil
}

type fakeReceiver struct {
	inputs     []ledger.ReceiveInput
	nextMoveID int64
	err        error
}

func (f *fakeReceiver) Receive(_ context.Context, input ledger.ReceiveInput) (ledger.Result, error) {
	if f.err != nil {
		return ledger.Result{}, f.err
	}
	f.inputs = append(f.inputs, input)
	f.nextMoveID++
	return ledger.Result{Movement: ledger.Movement{ID: f.nextMoveID, Type: ledger.MovementReceive}}, nil
}

type memoryPOAudit struct {
	logs []shared.AuditLog
}

func (a *memoryPOAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestReceiving(t *testing.T) (*Service, *memoryPORepo, *fakeReceiver, *memoryPOAudit) {
	t.Helper()
	repo := newMemoryPORepo()
	inv := &fakeReceiver{}
	audit := &memoryPOAudit{}
	svc := NewService(repo, inv, audit, nil, ServiceConfig{Clock: func() time.Time { return testNow }})
	return svc, repo, inv, audit
}

func createConfirmedOrder(t *testing.T, svc *Service) *PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	order, err := svc.Create(ctx, CreatePORequest{
		SupplierID: 11,
		Lines: []CreatePOLineRequest{
			{ProductID: 1, Quantity: 100, UOM: "EA", UnitCost: 12.50, DestinationLocationID: 5},
			{ProductID: 2, Quantity: 40, UOM: "EA", UnitCost: 3.00, DestinationLocationID: 5},
		},
	}, 1)
	require.NoError(t, err)

	for _, op := range []func(context.Context, int64, int64) (*PurchaseOrder, error){
		svc.Submit, svc.Approve, svc.Send, svc.Confirm,
	} {
		order, err = op(ctx, order.ID, 1)
		require.NoError(t, err)
	}
	require.Equal(t, POStatusConfirmed, order.Status)
	return order
}

func TestCreatePurchaseOrder(t *testing.T) {
	svc, _, _, audit := newTestReceiving(t)

	order, err := svc.Create(context.Background(), CreatePORequest{
		SupplierID: 11,
		Lines: []CreatePOLineRequest{
			{ProductID: 1, Quantity: 100, UOM: "EA", UnitCost: 12.50, DestinationLocationID: 5},
		},
	}, 1)
	require.NoError(t, err)

	require.Equal(t, POStatusDraft, order.Status)
	require.Equal(t, "PO-20230601-0001", order.OrderNumber)
	require.Len(t, order.Lines, 1)
	require.Equal(t, POLineStatusPending, order.Lines[0].Status)
	require.True(t, order.Lines[0].UnitCost.Equal(decimal.RequireFromString("12.5")))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "po:create", audit.logs[0].Action)
}

func TestReceiveBeforeConfirmFails(t *testing.T) {
	svc, _, inv, _ := newTestReceiving(t)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreatePORequest{
		SupplierID: 11,
		Lines: []CreatePOLineRequest{
			{ProductID: 1, Quantity: 100, UOM: "EA", DestinationLocationID: 5},
		},
	}, 1)
	require.NoError(t, err)

	_, err = svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 10, ActorID: 1,
	})
	require.ErrorIs(t, err, ErrNotReceivable)
	require.Empty(t, inv.inputs)
}

func TestReceiveLinePostsLedgerReceipt(t *testing.T) {
	svc, _, inv, _ := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)
	line := order.Lines[0]

	got, err := svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID:        order.ID,
		LineID:         line.ID,
		Quantity:       60,
		Lot:            "LOT-A",
		ActorID:        2,
		IdempotencyKey: "rcv-1",
	})
	require.NoError(t, err)

	require.Len(t, inv.inputs, 1)
	input := inv.inputs[0]
	require.Equal(t, line.ProductID, input.ProductID)
	require.Equal(t, line.DestinationLocationID, input.LocationID)
	require.InDelta(t, 60.0, input.Quantity, 0.0001)
	require.Equal(t, "LOT-A", input.Attrs.Lot)
	require.Equal(t, "EA", input.Attrs.UOM)
	require.True(t, input.Attrs.UnitCost.Equal(line.UnitCost))
	require.Equal(t, ledger.PurchaseOrderRef(order.ID), input.Ref)
	require.Equal(t, "rcv-1", input.IdempotencyKey)

	gotLine := got.Lines[0]
	require.Equal(t, POLineStatusPartiallyReceived, gotLine.Status)
	require.InDelta(t, 60.0, gotLine.QuantityReceived, 0.0001)
	require.InDelta(t, 40.0, gotLine.Remaining(), 0.0001)
	require.Len(t, gotLine.ReceivingHistory, 1)
	require.Equal(t, int64(1), gotLine.ReceivingHistory[0].MovementID)
	require.Equal(t, POStatusPartiallyReceived, got.Status)
}

func TestReceiveLineReachesFullyReceived(t *testing.T) {
	svc, _, _, _ := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)

	got, err := svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 100, ActorID: 2,
	})
	require.NoError(t, err)
	require.Equal(t, POLineStatusFullyReceived, got.Lines[0].Status)
	require.Equal(t, POStatusPartiallyReceived, got.Status)

	got, err = svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[1].ID, Quantity: 40, ActorID: 2,
	})
	require.NoError(t, err)
	require.Equal(t, POLineStatusFullyReceived, got.Lines[1].Status)
	require.Equal(t, POStatusFullyReceived, got.Status)
}

func TestFractionalReceiptsSumToFullyReceived(t *testing.T) {
	svc, _, _, _ := newTestReceiving(t)
	ctx := context.Background()
	order, err := svc.Create(ctx, CreatePORequest{
		SupplierID: 11,
		Lines: []CreatePOLineRequest{
			{ProductID: 1, Quantity: 0.3, UOM: "KG", UnitCost: 6.40, DestinationLocationID: 5},
		},
	}, 1)
	require.NoError(t, err)
	for _, op := range []func(context.Context, int64, int64) (*PurchaseOrder, error){
		svc.Submit, svc.Approve, svc.Send, svc.Confirm,
	} {
		order, err = op(ctx, order.ID, 1)
		require.NoError(t, err)
	}

	// Three receipts of 0.1 accumulate to 0.30000000000000004 in float64.
	var got *PurchaseOrder
	for i := 0; i < 3; i++ {
		got, err = svc.ReceiveLine(ctx, ReceiveLineInput{
			OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 0.1, ActorID: 2,
		})
		require.NoError(t, err)
	}
	require.Equal(t, POLineStatusFullyReceived, got.Lines[0].Status)
	require.Equal(t, POStatusFullyReceived, got.Status)
	require.InDelta(t, 0.0, got.Lines[0].Remaining(), 0.0001)
}

func TestReceiveLineOverReceipt(t *testing.T) {
	svc, _, _, _ := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)

	got, err := svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 100, ActorID: 2,
	})
	require.NoError(t, err)
	require.Equal(t, POLineStatusFullyReceived, got.Lines[0].Status)

	got, err = svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 5, ActorID: 2,
	})
	require.NoError(t, err)
	require.Equal(t, POLineStatusOverReceived, got.Lines[0].Status)
	require.InDelta(t, 105.0, got.Lines[0].QuantityReceived, 0.0001)
	require.InDelta(t, 0.0, got.Lines[0].Remaining(), 0.0001)
}

func TestReceiveLineValidation(t *testing.T) {
	svc, _, inv, _ := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)

	_, err := svc.ReceiveLine(ctx, ReceiveLineInput{OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 0, ActorID: 2})
	require.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	_, err = svc.ReceiveLine(ctx, ReceiveLineInput{OrderID: order.ID, LineID: 9999, Quantity: 5, ActorID: 2})
	require.ErrorIs(t, err, ErrLineNotFound)

	_, err = svc.ReceiveLine(ctx, ReceiveLineInput{OrderID: 9999, LineID: 1, Quantity: 5, ActorID: 2})
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Empty(t, inv.inputs)
}

func TestRejectLineRequiresReason(t *testing.T) {
	svc, _, _, _ := newTestReceiving(t)
	order := createConfirmedOrder(t, svc)

	_, err := svc.RejectLine(context.Background(), RejectLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 5, ActorID: 2,
	})
	require.ErrorIs(t, err, ErrReasonRequired)
}

func TestRejectLineNeverTouchesLedger(t *testing.T) {
	svc, _, inv, _ := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)

	got, err := svc.RejectLine(ctx, RejectLineInput{
		OrderID:  order.ID,
		LineID:   order.Lines[0].ID,
		Quantity: 10,
		Reason:   "damaged in transit",
		ActorID:  2,
	})
	require.NoError(t, err)

	require.Empty(t, inv.inputs)
	line := got.Lines[0]
	require.InDelta(t, 10.0, line.QuantityRejected, 0.0001)
	require.InDelta(t, 0.0, line.QuantityReceived, 0.0001)
	require.Equal(t, POLineStatusPending, line.Status)
	require.Equal(t, POStatusConfirmed, got.Status)
	require.Len(t, line.ReceivingHistory, 1)
	require.True(t, line.ReceivingHistory[0].Rejected)
	require.Equal(t, "damaged in transit", line.ReceivingHistory[0].Reason)
}

func TestCloseRequiresReceipts(t *testing.T) {
	svc, _, _, _ := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)

	_, err := svc.Close(ctx, order.ID, 1)
	require.ErrorIs(t, err, ErrCannotClose)

	_, err = svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 30, ActorID: 2,
	})
	require.NoError(t, err)

	got, err := svc.Close(ctx, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, POStatusClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
}

func TestCancelPurchaseOrder(t *testing.T) {
	svc, _, inv, _ := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)

	got, err := svc.Cancel(ctx, order.ID, 3, "budget cut")
	require.NoError(t, err)
	require.Equal(t, POStatusCancelled, got.Status)
	require.Equal(t, "budget cut", *got.CancellationReason)

	_, err = svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 10, ActorID: 2,
	})
	require.ErrorIs(t, err, ErrNotReceivable)
	require.Empty(t, inv.inputs)
}

func TestReceiveAuditTrail(t *testing.T) {
	svc, _, _, audit := newTestReceiving(t)
	ctx := context.Background()
	order := createConfirmedOrder(t, svc)

	_, err := svc.ReceiveLine(ctx, ReceiveLineInput{
		OrderID: order.ID, LineID: order.Lines[0].ID, Quantity: 10, ActorID: 2,
	})
	require.NoError(t, err)

	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "po:receive", last.Action)
	require.Equal(t, shared.AuditEntityPurchaseOrder, last.Entity)
	require.Equal(t, int64(2), last.ActorID)
}
