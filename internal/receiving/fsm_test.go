package receiving

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fsmNow = time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)

func TestPurchaseOrderHappyPath(t *testing.T) {
	order := &PurchaseOrder{Status: POStatusDraft}
	for _, to := range []POStatus{
		POStatusAwaitingApproval,
		POStatusApproved,
		POStatusSent,
		POStatusConfirmed,
		POStatusPartiallyReceived,
		POStatusFullyReceived,
		POStatusClosed,
	} {
		require.NoError(t, order.TransitionTo(to, 7, "", fsmNow), "transition to %s", to)
		require.Equal(t, to, order.Status)
	}
}

func TestPurchaseOrderIllegalTransitionLeavesStatus(t *testing.T) {
	order := &PurchaseOrder{Status: POStatusDraft}
	err := order.TransitionTo(POStatusFullyReceived, 7, "", fsmNow)

	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	require.Equal(t, "purchase_order", illegal.Entity)
	require.Equal(t, "draft", illegal.From)
	require.Equal(t, "fully_received", illegal.To)
	require.Equal(t, POStatusDraft, order.Status)
}

func TestPurchaseOrderTerminalStates(t *testing.T) {
	for _, terminal := range []POStatus{POStatusClosed, POStatusCancelled} {
		order := &PurchaseOrder{Status: terminal}
		for _, to := range []POStatus{POStatusDraft, POStatusConfirmed, POStatusClosed, POStatusCancelled} {
			require.Error(t, order.TransitionTo(to, 7, "", fsmNow), "%s -> %s must fail", terminal, to)
		}
	}
}

func TestPurchaseOrderTransitionStamps(t *testing.T) {
	order := &PurchaseOrder{Status: POStatusDraft}

	require.NoError(t, order.TransitionTo(POStatusAwaitingApproval, 3, "", fsmNow))
	require.NotNil(t, order.SubmittedAt)
	require.Equal(t, fsmNow, *order.SubmittedAt)

	require.NoError(t, order.TransitionTo(POStatusApproved, 9, "", fsmNow))
	require.NotNil(t, order.ApprovedAt)
	require.NotNil(t, order.ApprovedBy)
	require.Equal(t, int64(9), *order.ApprovedBy)
}

func TestPurchaseOrderCancelStampsReason(t *testing.T) {
	order := &PurchaseOrder{Status: POStatusSent}
	require.NoError(t, order.TransitionTo(POStatusCancelled, 5, "supplier out of business", fsmNow))

	require.NotNil(t, order.CancelledAt)
	require.NotNil(t, order.CancelledBy)
	require.Equal(t, int64(5), *order.CancelledBy)
	require.NotNil(t, order.CancellationReason)
	require.Equal(t, "supplier out of business", *order.CancellationReason)
}

func TestPurchaseOrderRejectsBackwardsFlow(t *testing.T) {
	order := &PurchaseOrder{Status: POStatusFullyReceived}
	require.Error(t, order.TransitionTo(POStatusCancelled, 1, "", fsmNow))
	require.Error(t, order.TransitionTo(POStatusConfirmed, 1, "", fsmNow))
	require.NoError(t, order.TransitionTo(POStatusClosed, 1, "", fsmNow))
}

func TestPurchaseOrderLineOverReceivePath(t *testing.T) {
	line := &PurchaseOrderLine{Status: POLineStatusPending}
	require.NoError(t, line.TransitionTo(POLineStatusPartiallyReceived, fsmNow))
	require.NoError(t, line.TransitionTo(POLineStatusFullyReceived, fsmNow))
	require.NoError(t, line.TransitionTo(POLineStatusOverReceived, fsmNow))
	require.Error(t, line.TransitionTo(POLineStatusFullyReceived, fsmNow))
}

func TestDerivePurchaseOrderStatus(t *testing.T) {
	cases := []struct {
		name   string
		lines  []PurchaseOrderLine
		expect POStatus
	}{
		{
			name:   "nothing received",
			lines:  []PurchaseOrderLine{{Status: POLineStatusPending}, {Status: POLineStatusPending}},
			expect: POStatusConfirmed,
		},
		{
			name:   "one line partial",
			lines:  []PurchaseOrderLine{{Status: POLineStatusPartiallyReceived}, {Status: POLineStatusPending}},
			expect: POStatusPartiallyReceived,
		},
		{
			name:   "one full one pending",
			lines:  []PurchaseOrderLine{{Status: POLineStatusFullyReceived}, {Status: POLineStatusPending}},
			expect: POStatusPartiallyReceived,
		},
		{
			name:   "all full",
			lines:  []PurchaseOrderLine{{Status: POLineStatusFullyReceived}, {Status: POLineStatusFullyReceived}},
			expect: POStatusFullyReceived,
		},
		{
			name:   "over counts as done",
			lines:  []PurchaseOrderLine{{Status: POLineStatusOverReceived}, {Status: POLineStatusFullyReceived}},
			expect: POStatusFullyReceived,
		},
		{
			name:   "cancelled lines excluded",
			lines:  []PurchaseOrderLine{{Status: POLineStatusFullyReceived}, {Status: POLineStatusCancelled}},
			expect: POStatusFullyReceived,
		},
		{
			name:   "all cancelled",
			lines:  []PurchaseOrderLine{{Status: POLineStatusCancelled}},
			expect: POStatusConfirmed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, deriveOrderStatus(tc.lines))
		})
	}
}
