package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/meridian-wms/meridian/internal/jobs"
)

// ReorderSnapshotKey is the Redis key holding the latest low-stock snapshot.
const ReorderSnapshotKey = "meridian:reorder:snapshot"

// ReorderSnapshotTTL bounds staleness when the scan stops running.
const ReorderSnapshotTTL = 48 * time.Hour

// LowStockEntry is one product below its reorder point.
type LowStockEntry struct {
	ProductID    int64   `json:"product_id"`
	SKU          string  `json:"sku"`
	Available    float64 `json:"available"`
	ReorderPoint float64 `json:"reorder_point"`
}

// ReorderSnapshot is the payload written to Redis after every scan.
type ReorderSnapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []LowStockEntry `json:"entries"`
}

// ReorderScanJob sums available stock per product and snapshots everything
// sitting below reorder point into Redis for purchasing to act on.
type ReorderScanJob struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReorderScanJob initialises the reorder scan handler.
func NewReorderScanJob(pool *pgxpool.Pool, client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderScanJob {
	return &ReorderScanJob{
		Pool:    pool,
		Redis:   client,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reorder scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReorderScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting reorder scan")

	entries, err := j.scan(ctx)
	if err != nil {
		resultErr = err
		logger.Error("reorder scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, e := range entries {
		logger.Warn("product below reorder point",
			slog.Int64("product_id", e.ProductID),
			slog.String("sku", e.SKU),
			slog.Float64("available", e.Available),
			slog.Float64("reorder_point", e.ReorderPoint),
		)
	}
	j.metrics().SetLowStock(len(entries))

	if err := j.publishSnapshot(ctx, entries); err != nil {
		resultErr = err
		logger.Error("write reorder snapshot", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed reorder scan", slog.Int("low_stock", len(entries)))
	return resultErr
}

func (j *ReorderScanJob) publishSnapshot(ctx context.Context, entries []LowStockEntry) error {
	if j.Redis == nil {
		return nil
	}
	body, err := json.Marshal(ReorderSnapshot{GeneratedAt: j.now(), Entries: entries})
	if err != nil {
		return err
	}
	return j.Redis.Set(ctx, ReorderSnapshotKey, body, ReorderSnapshotTTL).Err()
}

func (j *ReorderScanJob) scan(ctx context.Context) ([]LowStockEntry, error) {
	rows, err := j.Pool.Query(ctx, `
SELECT p.id, p.sku, COALESCE(SUM(lr.available_quantity), 0) AS available, p.reorder_point
FROM products p
LEFT JOIN ledger_rows lr ON lr.product_id = p.id
WHERE p.is_active AND p.reorder_point > 0
GROUP BY p.id, p.sku, p.reorder_point
HAVING COALESCE(SUM(lr.available_quantity), 0) < p.reorder_point
ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LowStockEntry
	for rows.Next() {
		var e LowStockEntry
		if err := rows.Scan(&e.ProductID, &e.SKU, &e.Available, &e.ReorderPoint); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *ReorderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReorderScan))
	}
	return slog.Default().With(slog.String("job", TaskReorderScan))
}

func (j *ReorderScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReorderScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
