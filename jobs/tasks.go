package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-wms/meridian/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityScan verifies ledger balances against transaction history.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskReorderScan snapshots products below reorder point.
	TaskReorderScan = "inventory:reorder_scan"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityScanPayload carries scheduling metadata for the integrity scan.
type IntegrityScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityScanTask constructs an Asynq task for the ledger integrity scan.
func NewIntegrityScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload controls the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// ReorderScanPayload carries scheduling metadata for the reorder scan.
type ReorderScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReorderScanTask constructs an Asynq task for the reorder scan.
func NewReorderScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderScan, body, asynq.Queue(QueueDefault)), nil
}
