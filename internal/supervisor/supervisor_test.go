package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	coredomain "github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/queue"
	"github.com/sitesearch/pipeline/internal/infra/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManager(t *testing.T) *queue.Manager {
	addr := os.Getenv("PIPELINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PIPELINE_TEST_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return queue.New(rdb)
}

func TestAddURLToQueueEnqueuesIntoSharedQueue(t *testing.T) {
	qm := testManager(t)
	s := New(&config.Config{Stages: map[string]config.StageLaunch{}}, qm, testLogger())

	taskID, err := s.AddURLToQueue(context.Background(), "supervisor-seed-test", "https://example.com/a", "site-1")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	length, err := qm.GetQueueLength(context.Background(), "supervisor-seed-test")
	require.NoError(t, err)
	require.GreaterOrEqual(t, length, int64(1))
}

func TestSeedDedicatedUsesTaskScopedKey(t *testing.T) {
	qm := testManager(t)
	s := New(&config.Config{Stages: map[string]config.StageLaunch{}}, qm, testLogger())

	taskID, err := s.SeedDedicated(context.Background(), "https://example.com/b", "site-1")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	status, err := qm.GetTaskStatus(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, taskID, status.ID)
}

func TestScaleStageNoopWhenAlreadyAtTarget(t *testing.T) {
	qm := testManager(t)
	s := New(&config.Config{Stages: map[string]config.StageLaunch{
		"fetcher": {InitialCount: 0},
	}}, qm, testLogger())

	err := s.ScaleStage(context.Background(), "fetcher", 0)
	require.NoError(t, err)
}

func TestScaleStageUnknownStageErrors(t *testing.T) {
	qm := testManager(t)
	s := New(&config.Config{Stages: map[string]config.StageLaunch{}}, qm, testLogger())

	err := s.ScaleStage(context.Background(), "does-not-exist", 1)
	require.Error(t, err)
}

// TestSweepStageRequeuesStalledTask verifies the recovery sweep reissues
// fail_task(retry=true) for a task whose processing time exceeds the stall
// timeout, as if its owning worker had died without the queue backend
// noticing.
func TestSweepStageRequeuesStalledTask(t *testing.T) {
	qm := testManager(t)
	ctx := context.Background()
	queueName := "supervisor-sweep-test"
	t.Cleanup(func() { _ = qm.ClearQueue(ctx, queueName) })

	taskID, err := qm.Enqueue(ctx, queueName, &coredomain.Envelope{URL: "https://example.com/stuck"}, "")
	require.NoError(t, err)

	_, err = qm.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)

	status, err := qm.GetTaskStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, coredomain.StatusProcessing, status.Status)

	s := &Supervisor{
		cfg: &config.Config{RecoveryStallTimeout: -1 * time.Second},
		qm:  qm,
		log: testLogger(),
	}
	pool := &stagePool{launch: config.StageLaunch{InputQueue: queueName}, workers: map[string]*worker{}}

	s.sweepStage(ctx, "fetcher", pool, errors.New("worker died"))

	status, err = qm.GetTaskStatus(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, coredomain.StatusPending, status.Status)
	require.Equal(t, 1, status.RetryCount)
}
