package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian/internal/ledger"
)

type stubChecker struct {
	drifts []ledger.BalanceDrift
	err    error
	calls  int
}

func (c *stubChecker) VerifyIntegrity(_ context.Context) ([]ledger.BalanceDrift, error) {
	c.calls++
	return c.drifts, c.err
}

func TestIntegrityScanReportsDrift(t *testing.T) {
	checker := &stubChecker{drifts: []ledger.BalanceDrift{
		{ProductID: 1, LocationID: 5, OnHand: 90, RunningBalance: 100},
	}}
	job := NewIntegrityScanJob(checker, nil, nil)

	task, err := NewIntegrityScanTask(time.Now())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, checker.calls)
}

func TestIntegrityScanPropagatesError(t *testing.T) {
	checker := &stubChecker{err: errors.New("boom")}
	job := NewIntegrityScanJob(checker, nil, nil)

	task, err := NewIntegrityScanTask(time.Now())
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

func TestIntegrityScanSkipsMalformedPayload(t *testing.T) {
	checker := &stubChecker{}
	job := NewIntegrityScanJob(checker, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrityScan, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, checker.calls)
}

func TestReorderSnapshotPublishedToRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fixed := time.Date(2023, 6, 1, 3, 0, 0, 0, time.UTC)
	job := &ReorderScanJob{
		Redis: client,
		clock: func() time.Time { return fixed },
	}

	entries := []LowStockEntry{
		{ProductID: 7, SKU: "WIDGET-1", Available: 3, ReorderPoint: 10},
	}
	require.NoError(t, job.publishSnapshot(context.Background(), entries))

	raw, err := srv.Get(ReorderSnapshotKey)
	require.NoError(t, err)

	var snapshot ReorderSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snapshot))
	require.True(t, snapshot.GeneratedAt.Equal(fixed))
	require.Len(t, snapshot.Entries, 1)
	require.Equal(t, "WIDGET-1", snapshot.Entries[0].SKU)

	ttl := srv.TTL(ReorderSnapshotKey)
	require.Equal(t, ReorderSnapshotTTL, ttl)
}

func TestLowStockEndpointServesSnapshot(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := NewHandler(nil, client, nil)
	router := chi.NewRouter()
	router.Route("/jobs", handler.MountRoutes)

	// No snapshot published yet.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/low-stock", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	fixed := time.Date(2023, 6, 1, 3, 0, 0, 0, time.UTC)
	job := &ReorderScanJob{
		Redis: client,
		clock: func() time.Time { return fixed },
	}
	entries := []LowStockEntry{
		{ProductID: 7, SKU: "WIDGET-1", Available: 3, ReorderPoint: 10},
	}
	require.NoError(t, job.publishSnapshot(context.Background(), entries))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/low-stock", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snapshot ReorderSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Entries, 1)
	require.Equal(t, "WIDGET-1", snapshot.Entries[0].SKU)
}

func TestTaskConstructorsCarryPayload(t *testing.T) {
	task, err := NewIdempotencyCleanupTask(12 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, TaskIdempotencyCleanup, task.Type())

	var payload IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, 12*time.Hour, payload.OlderThan)
}
