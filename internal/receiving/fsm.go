package receiving

import (
	"fmt"
	"time"
)

// IllegalTransitionError reports a status transition not present in the
// allowed-transition table. The entity is left unchanged.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("receiving: illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

// poTransitions is the single source of truth for purchase order status
// changes. closed and cancelled are terminal.
var poTransitions = map[POStatus][]POStatus{
	POStatusDraft:             {POStatusAwaitingApproval, POStatusCancelled},
	POStatusAwaitingApproval:  {POStatusApproved, POStatusDraft, POStatusCancelled},
	POStatusApproved:          {POStatusSent, POStatusCancelled},
	POStatusSent:              {POStatusConfirmed, POStatusCancelled},
	POStatusConfirmed:         {POStatusPartiallyReceived, POStatusFullyReceived, POStatusCancelled},
	POStatusPartiallyReceived: {POStatusFullyReceived, POStatusClosed, POStatusCancelled},
	POStatusFullyReceived:     {POStatusClosed},
	POStatusClosed:            {},
	POStatusCancelled:         {},
}

var poLineTransitions = map[POLineStatus][]POLineStatus{
	POLineStatusPending:           {POLineStatusPartiallyReceived, POLineStatusFullyReceived, POLineStatusOverReceived, POLineStatusCancelled},
	POLineStatusPartiallyReceived: {POLineStatusFullyReceived, POLineStatusOverReceived, POLineStatusCancelled},
	POLineStatusFullyReceived:     {POLineStatusOverReceived},
	POLineStatusOverReceived:      {},
	POLineStatusCancelled:         {},
}

// CanTransition reports whether the order may move to the target status.
func (o *PurchaseOrder) CanTransition(to POStatus) bool {
	for _, allowed := range poTransitions[o.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to the target status and applies stamp side
// effects. On an illegal transition the order is unchanged and an
// IllegalTransitionError is returned.
func (o *PurchaseOrder) TransitionTo(to POStatus, actorID int64, reason string, now time.Time) error {
	if !o.CanTransition(to) {
		return &IllegalTransitionError{Entity: "purchase_order", From: string(o.Status), To: string(to)}
	}
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case POStatusAwaitingApproval:
		o.SubmittedAt = &now
	case POStatusApproved:
		o.ApprovedAt = &now
		o.ApprovedBy = &actorID
	case POStatusClosed:
		o.ClosedAt = &now
	case POStatusCancelled:
		o.CancelledAt = &now
		o.CancelledBy = &actorID
		if reason != "" {
			o.CancellationReason = &reason
		}
	}
	return nil
}

// CanTransition reports whether the line may move to the target status.
func (l *PurchaseOrderLine) CanTransition(to POLineStatus) bool {
	for _, allowed := range poLineTransitions[l.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the line to the target status.
func (l *PurchaseOrderLine) TransitionTo(to POLineStatus, now time.Time) error {
	if !l.CanTransition(to) {
		return &IllegalTransitionError{Entity: "purchase_order_line", From: string(l.Status), To: string(to)}
	}
	l.Status = to
	l.UpdatedAt = now
	return nil
}

// deriveOrderStatus computes the receiving status implied by the aggregate
// line state. Cancelled lines are excluded.
func deriveOrderStatus(lines []PurchaseOrderLine) POStatus {
	received := false
	allDone := true
	seen := false
	for _, line := range lines {
		if line.Status == POLineStatusCancelled {
			continue
		}
		seen = true
		switch line.Status {
		case POLineStatusFullyReceived, POLineStatusOverReceived:
			received = true
		case POLineStatusPartiallyReceived:
			received = true
			allDone = false
		default:
			allDone = false
		}
	}
	switch {
	case seen && allDone:
		return POStatusFullyReceived
	case received:
		return POStatusPartiallyReceived
	default:
		return POStatusConfirmed
	}
}
