package monitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/queue"
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

func TestCheckQueueHealthFlagsBacklog(t *testing.T) {
	qm := testManager(t)
	ctx := context.Background()

	queueName := "monitor-backlog-test"
	for i := 0; i < 3; i++ {
		_, err := qm.Enqueue(ctx, queueName, nil, "")
		require.NoError(t, err)
	}

	m := New(qm, Config{
		QueueNames:      []string{queueName},
		CheckInterval:   time.Hour,
		MaxPending:      1,
		MaxErrorRate:    0.5,
		ActivityTimeout: time.Hour,
	}, testLogger(), nil)

	m.checkQueueHealth(ctx, queueName)

	status, ok := m.GetQueueHealth(queueName)
	require.True(t, ok)
	require.True(t, status.BacklogWarning)
	require.False(t, status.Healthy())
}

func TestSampleCallbackFiresOnHealthySample(t *testing.T) {
	qm := testManager(t)
	ctx := context.Background()

	queueName := "monitor-sample-callback-test"
	_, err := qm.Enqueue(ctx, queueName, nil, "")
	require.NoError(t, err)

	m := New(qm, Config{
		QueueNames:      []string{queueName},
		CheckInterval:   time.Hour,
		MaxPending:      1000,
		MaxErrorRate:    0.5,
		ActivityTimeout: time.Hour,
	}, testLogger(), nil)

	var sampled bool
	m.AddSampleCallback(func(status domain.QueueHealthStatus) {
		sampled = true
	})

	m.checkQueueHealth(ctx, queueName)

	status, ok := m.GetQueueHealth(queueName)
	require.True(t, ok)
	require.True(t, status.Healthy())
	require.True(t, sampled, "sample callback should fire even when the queue is healthy")
}

func TestSummaryReportAggregatesAcrossQueues(t *testing.T) {
	qm := testManager(t)
	ctx := context.Background()

	qa, qb := "monitor-summary-a", "monitor-summary-b"
	_, err := qm.Enqueue(ctx, qa, nil, "")
	require.NoError(t, err)
	_, err = qm.Enqueue(ctx, qb, nil, "")
	require.NoError(t, err)

	m := New(qm, Config{
		QueueNames:      []string{qa, qb},
		CheckInterval:   time.Hour,
		MaxPending:      1000,
		MaxErrorRate:    0.5,
		ActivityTimeout: time.Hour,
	}, testLogger(), nil)

	m.checkQueueHealth(ctx, qa)
	m.checkQueueHealth(ctx, qb)

	report := m.GetSummaryReport()
	require.Equal(t, 2, report.TotalQueues)
	require.GreaterOrEqual(t, report.TotalPending, int64(2))
}
