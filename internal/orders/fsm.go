package orders

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
	return fmt.Sprintf("orders: illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

// orderTransitions is the single source of truth for legal sales order
// status changes. on_hold is reachable from every active state and always
// resumes to pending; cancelled and completed are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:          {OrderStatusAwaitingPayment, OrderStatusPaid, OrderStatusProcessing, OrderStatusReadyToPick, OrderStatusPicking, OrderStatusPicked, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusAwaitingPayment:  {OrderStatusPaid, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusPaid:             {OrderStatusProcessing, OrderStatusReadyToPick, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusProcessing:       {OrderStatusReadyToPick, OrderStatusPicking, OrderStatusPicked, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusReadyToPick:      {OrderStatusPicking, OrderStatusPicked, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusPicking:          {OrderStatusPicked, OrderStatusPacked, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusPicked:           {OrderStatusPacking, OrderStatusPacked, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusPacking:          {OrderStatusPacked, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusPacked:           {OrderStatusAwaitingShipment, OrderStatusShipped, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusAwaitingShipment: {OrderStatusShipped, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusShipped:          {OrderStatusDelivered, OrderStatusReturned},
	OrderStatusDelivered:        {OrderStatusReturned, OrderStatusCompleted},
	OrderStatusReturned:         {OrderStatusCompleted},
	OrderStatusOnHold:           {OrderStatusPending, OrderStatusCancelled},
	OrderStatusCancelled:        {},
	OrderStatusCompleted:        {},
}

var lineTransitions = map[LineStatus][]LineStatus{
	LineStatusPending:            {LineStatusAllocated, LineStatusPartiallyAllocated, LineStatusBackordered, LineStatusPicking, LineStatusPicked, LineStatusCancelled},
	LineStatusAllocated:          {LineStatusPicking, LineStatusPicked, LineStatusPartiallyAllocated, LineStatusPending, LineStatusCancelled},
	LineStatusPartiallyAllocated: {LineStatusAllocated, LineStatusBackordered, LineStatusPicking, LineStatusPicked, LineStatusCancelled},
	LineStatusBackordered:        {LineStatusAllocated, LineStatusPartiallyAllocated, LineStatusCancelled},
	LineStatusPicking:            {LineStatusPicked, LineStatusPacked, LineStatusCancelled},
	LineStatusPicked:             {LineStatusPicking, LineStatusPacked, LineStatusCancelled},
	LineStatusPacked:             {LineStatusShipped, LineStatusCancelled},
	LineStatusShipped:            {},
	LineStatusCancelled:          {},
}

// CanTransition reports whether the order may move to the target status.
func (o *SalesOrder) CanTransition(to OrderStatus) bool {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to the target status and applies the stamp
// side effects for the entered state. On an illegal transition the order is
// unchanged and an IllegalTransitionError is returned.
func (o *SalesOrder) TransitionTo(to OrderStatus, actorID int64, reason string, now time.Time) error {
	if !o.CanTransition(to) {
		return &IllegalTransitionError{Entity: "sales_order", From: string(o.Status), To: string(to)}
	}
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case OrderStatusPicked:
		o.PickedAt = &now
		o.PickedBy = &actorID
	case OrderStatusPacked:
		o.PackedAt = &now
		o.PackedBy = &actorID
	case OrderStatusShipped:
		o.ShippedDate = &now
	case OrderStatusDelivered:
		o.ActualDeliveryDate = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
		o.CancelledBy = &actorID
		if reason != "" {
			o.CancellationReason = &reason
		}
	}
	return nil
}

// CanTransition reports whether the line may move to the target status.
func (l *SalesOrderLine) CanTransition(to LineStatus) bool {
	for _, allowed := range lineTransitions[l.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the line to the target status. On an illegal transition
// the line is unchanged and an IllegalTransitionError is returned.
func (l *SalesOrderLine) TransitionTo(to LineStatus, now time.Time) error {
	if !l.CanTransition(to) {
		return &IllegalTransitionError{Entity: "sales_order_line", From: string(l.Status), To: string(to)}
	}
	l.Status = to
	l.UpdatedAt = now
	return nil
}

// DeriveOrderStatus computes the order status implied by the aggregate line
// state. Cancelled lines are excluded; cancelled/completed orders are sticky
// and must never be overwritten by the derived value (callers check).
func DeriveOrderStatus(lines []SalesOrderLine) OrderStatus {
	active := make([]SalesOrderLine, 0, len(lines))
	for _, line := range lines {
		if line.Status != LineStatusCancelled {
			active = append(active, line)
		}
	}
	if len(active) == 0 {
		return OrderStatusPending
	}

	allShipped, allPicked, allAllocated := true, true, true
	anyPicking, anyAllocated := false, false
	for _, line := range active {
		if line.Status != LineStatusShipped {
			allShipped = false
		}
		switch line.Status {
		case LineStatusPicked, LineStatusPacked, LineStatusShipped:
		default:
			allPicked = false
		}
		switch line.Status {
		case LineStatusAllocated, LineStatusPicking, LineStatusPicked, LineStatusPacked, LineStatusShipped:
		default:
			allAllocated = false
		}
		if line.Status == LineStatusPicking {
			anyPicking = true
		}
		if line.Status == LineStatusAllocated || line.Status == LineStatusPartiallyAllocated {
			anyAllocated = true
		}
	}

	switch {
	case allShipped:
		return OrderStatusShipped
	case allPicked:
		return OrderStatusPicked
	case anyPicking:
		return OrderStatusPicking
	case allAllocated:
		return OrderStatusReadyToPick
	case anyAllocated:
		return OrderStatusProcessing
	default:
		return OrderStatusPending
	}
}

// applyDerivedStatus moves the order to the derived status when it differs
// and the transition is legal. Sticky terminal states and holds are left
// alone.
func applyDerivedStatus(order *SalesOrder, now time.Time, actorID int64) {
	switch order.Status {
	case OrderStatusCancelled, OrderStatusCompleted, OrderStatusOnHold:
		return
	}
	derived := DeriveOrderStatus(order.Lines)
	if derived == order.Status {
		return
	}
	_ = order.TransitionTo(derived, actorID, "", now)
}
