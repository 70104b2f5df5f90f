package orders

import (
	"context"
	"fmt"
)

const backorderNoInventory = "No inventory available"

// AllocatedItem reports one line's allocation outcome.
type AllocatedItem struct {
	LineID    int64   `json:"line_id"`
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

// BackorderedItem reports one line whose demand could not be met.
type BackorderedItem struct {
	LineID    int64   `json:"line_id"`
	ProductID int64   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
	Reason    string  `json:"reason"`
}

// AllocationResult aggregates the outcome of one allocation pass.
type AllocationResult struct {
	FullyAllocated   bool              `json:"fully_allocated"`
	AllocatedItems   []AllocatedItem   `json:"allocated_items"`
	BackorderedItems []BackorderedItem `json:"backordered_items"`
}

// Allocate earmarks available ledger stock against every open line of the
// order, consuming rows warehouse-wide in FIFO order. Allocation is
// informational: it writes allocation details and progress counters on the
// line but holds no reservation, so a concurrent allocator simply sees
// reduced availability and backorders the remainder.
func (s *Service) Allocate(ctx context.Context, orderID, actorID int64) (AllocationResult, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("get order: %w", err)
	}
	if !orderActive(order.Status) {
		return AllocationResult{}, ErrOrderNotActive
	}

	now := s.clock()
	result := AllocationResult{FullyAllocated: true}
	touched := make([]*SalesOrderLine, 0, len(order.Lines))

	for i := range order.Lines {
		line := &order.Lines[i]
		if line.Status == LineStatusCancelled || line.Status == LineStatusShipped || line.FullyAllocated() {
			continue
		}
		remaining := line.RemainingToAllocate()

		rows, err := s.inventory.AvailableRows(ctx, line.ProductID)
		if err != nil {
			return AllocationResult{}, fmt.Errorf("list available rows: %w", err)
		}

		var met float64
		for _, row := range rows {
			if remaining <= 0 {
				break
			}
			take := row.AvailableQuantity
			if take > remaining {
				take = remaining
			}
			line.AllocationDetails = append(line.AllocationDetails, AllocationDetail{
				LedgerRowID: row.ID,
				LocationID:  row.LocationID,
				Quantity:    take,
				Lot:         row.Lot,
				Batch:       row.Batch,
				AllocatedAt: now,
			})
			met += take
			remaining -= take
		}

		line.QuantityAllocated += met
		target := LineStatusBackordered
		switch {
		case line.FullyAllocated():
			target = LineStatusAllocated
		case line.QuantityAllocated > 0:
			target = LineStatusPartiallyAllocated
		}
		if target == LineStatusBackordered {
			reason := backorderNoInventory
			line.BackorderReason = &reason
		}
		if line.Status != target {
			if err := line.TransitionTo(target, now); err != nil {
				return AllocationResult{}, err
			}
		}
		touched = append(touched, line)

		if line.FullyAllocated() {
			result.AllocatedItems = append(result.AllocatedItems, AllocatedItem{
				LineID:    line.ID,
				ProductID: line.ProductID,
				Quantity:  line.QuantityAllocated,
			})
			s.countAllocation("allocated")
		} else {
			result.FullyAllocated = false
			result.BackorderedItems = append(result.BackorderedItems, BackorderedItem{
				LineID:    line.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity - line.QuantityAllocated,
				Reason:    backorderNoInventory,
			})
			if line.QuantityAllocated > 0 {
				s.countAllocation("partial")
				result.AllocatedItems = append(result.AllocatedItems, AllocatedItem{
					LineID:    line.ID,
					ProductID: line.ProductID,
					Quantity:  line.QuantityAllocated,
				})
			} else {
				s.countAllocation("backordered")
			}
		}
	}

	applyDerivedStatus(order, now, actorID)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		for _, line := range touched {
			if err := repo.UpdateLine(ctx, line); err != nil {
				return err
			}
		}
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return AllocationResult{}, fmt.Errorf("persist allocation: %w", err)
	}
	s.recordAudit(ctx, actorID, "order:allocate", order.ID, map[string]any{
		"fully_allocated": result.FullyAllocated,
		"backordered":     len(result.BackorderedItems),
	})
	return result, nil
}

func (s *Service) countAllocation(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAllocation(outcome)
	}
}
