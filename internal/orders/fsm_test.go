package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fsmNow = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

func TestOrderHappyPathTransitions(t *testing.T) {
	order := &SalesOrder{Status: OrderStatusPending}
	path := []OrderStatus{
		OrderStatusProcessing,
		OrderStatusReadyToPick,
		OrderStatusPicking,
		OrderStatusPicked,
		OrderStatusPacking,
		OrderStatusPacked,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCompleted,
	}
	for _, next := range path {
		require.NoError(t, order.TransitionTo(next, 1, "", fsmNow), "to %s", next)
		require.Equal(t, next, order.Status)
	}
}

func TestOrderIllegalTransitionLeavesStatusUnchanged(t *testing.T) {
	order := &SalesOrder{Status: OrderStatusPending}
	err := order.TransitionTo(OrderStatusShipped, 1, "", fsmNow)

	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	require.Equal(t, "sales_order", illegal.Entity)
	require.Equal(t, string(OrderStatusPending), illegal.From)
	require.Equal(t, string(OrderStatusShipped), illegal.To)
	require.Equal(t, OrderStatusPending, order.Status)
}

func TestTerminalStatesAreSticky(t *testing.T) {
	for _, terminal := range []OrderStatus{OrderStatusCancelled, OrderStatusCompleted} {
		order := &SalesOrder{Status: terminal}
		for target := range orderTransitions {
			require.Error(t, order.TransitionTo(target, 1, "", fsmNow), "%s -> %s", terminal, target)
		}
	}
}

func TestTransitionStamps(t *testing.T) {
	order := &SalesOrder{Status: OrderStatusPicking}
	require.NoError(t, order.TransitionTo(OrderStatusPicked, 7, "", fsmNow))
	require.NotNil(t, order.PickedAt)
	require.Equal(t, int64(7), *order.PickedBy)

	require.NoError(t, order.TransitionTo(OrderStatusPacked, 8, "", fsmNow))
	require.NotNil(t, order.PackedAt)
	require.Equal(t, int64(8), *order.PackedBy)

	require.NoError(t, order.TransitionTo(OrderStatusShipped, 8, "", fsmNow))
	require.NotNil(t, order.ShippedDate)

	require.NoError(t, order.TransitionTo(OrderStatusDelivered, 8, "", fsmNow))
	require.NotNil(t, order.ActualDeliveryDate)
}

func TestCancelStampsReason(t *testing.T) {
	order := &SalesOrder{Status: OrderStatusProcessing}
	require.NoError(t, order.TransitionTo(OrderStatusCancelled, 3, "customer request", fsmNow))
	require.NotNil(t, order.CancelledAt)
	require.Equal(t, int64(3), *order.CancelledBy)
	require.Equal(t, "customer request", *order.CancellationReason)
}

func TestOnHoldResumesToPending(t *testing.T) {
	order := &SalesOrder{Status: OrderStatusPicking}
	require.NoError(t, order.TransitionTo(OrderStatusOnHold, 1, "stock check", fsmNow))
	require.NoError(t, order.TransitionTo(OrderStatusPending, 1, "", fsmNow))
	require.Equal(t, OrderStatusPending, order.Status)
}

func TestLineTransitions(t *testing.T) {
	line := &SalesOrderLine{Status: LineStatusPending}
	require.NoError(t, line.TransitionTo(LineStatusAllocated, fsmNow))
	require.NoError(t, line.TransitionTo(LineStatusPicking, fsmNow))
	require.NoError(t, line.TransitionTo(LineStatusPicked, fsmNow))
	require.NoError(t, line.TransitionTo(LineStatusPacked, fsmNow))
	require.NoError(t, line.TransitionTo(LineStatusShipped, fsmNow))

	err := line.TransitionTo(LineStatusPending, fsmNow)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	require.Equal(t, LineStatusShipped, line.Status)
}

func TestLinePacksWhileStillPicking(t *testing.T) {
	line := &SalesOrderLine{Status: LineStatusPicking}
	require.NoError(t, line.TransitionTo(LineStatusPacked, fsmNow))
	require.Equal(t, LineStatusPacked, line.Status)

	order := &SalesOrder{Status: OrderStatusPicking}
	require.NoError(t, order.TransitionTo(OrderStatusPacked, 7, "", fsmNow))
}

func TestDeriveOrderStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []LineStatus
		want     OrderStatus
	}{
		{"all shipped", []LineStatus{LineStatusShipped, LineStatusShipped}, OrderStatusShipped},
		{"all picked", []LineStatus{LineStatusPicked, LineStatusPacked}, OrderStatusPicked},
		{"any picking", []LineStatus{LineStatusPicking, LineStatusAllocated}, OrderStatusPicking},
		{"all allocated", []LineStatus{LineStatusAllocated, LineStatusAllocated}, OrderStatusReadyToPick},
		{"partially allocated", []LineStatus{LineStatusAllocated, LineStatusPartiallyAllocated}, OrderStatusProcessing},
		{"backordered only", []LineStatus{LineStatusBackordered, LineStatusBackordered}, OrderStatusPending},
		{"cancelled lines ignored", []LineStatus{LineStatusShipped, LineStatusCancelled}, OrderStatusShipped},
		{"no lines", nil, OrderStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := make([]SalesOrderLine, len(tc.statuses))
			for i, s := range tc.statuses {
				lines[i] = SalesOrderLine{Status: s}
			}
			require.Equal(t, tc.want, DeriveOrderStatus(lines))
		})
	}
}
