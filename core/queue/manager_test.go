package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sitesearch/pipeline/core/domain"
)

// newTestManager connects to a live Redis instance for integration-style
// coverage of the exact command sequencing in manager.go. Like the rest of
// the pack's Redis-backed tests, this is skipped unless a real backend is
// reachable — there is no in-memory Redis double anywhere in the pack to
// depend on instead.
func newTestManager(t *testing.T) *Manager {
	addr := os.Getenv("PIPELINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PIPELINE_TEST_REDIS_ADDR not set; skipping Redis-backed queue manager test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rdb.Ping(ctx).Err())

	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb)
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queueName := "test-roundtrip"
	t.Cleanup(func() { _ = m.ClearQueue(ctx, queueName) })

	env := &domain.Envelope{URL: "https://example.com/", SiteID: "demo"}
	id, err := m.Enqueue(ctx, queueName, env, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := m.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, id, task.ID)
	require.Equal(t, domain.StatusProcessing, task.Status)
	require.Equal(t, env.URL, task.Data.URL)
	require.False(t, task.StartedAt.IsZero())
}

func TestCompleteTaskIsIdempotentNoOpWhenNotProcessing(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queueName := "test-complete-noop"
	t.Cleanup(func() { _ = m.ClearQueue(ctx, queueName) })

	// No task was ever enqueued/dequeued under this id: complete_task must
	// be a no-op, not an error.
	require.NoError(t, m.CompleteTask(ctx, queueName, "nonexistent", ""))
}

func TestFailTaskRetryReentersPending(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queueName := "test-retry"
	t.Cleanup(func() { _ = m.ClearQueue(ctx, queueName) })

	id, err := m.Enqueue(ctx, queueName, &domain.Envelope{URL: "https://example.com/x", SiteID: "demo"}, "")
	require.NoError(t, err)

	task, err := m.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)
	require.Equal(t, id, task.ID)

	require.NoError(t, m.FailTask(ctx, queueName, id, assertErr("boom"), true))

	again, err := m.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, id, again.ID)
	require.Equal(t, 1, again.RetryCount)
}

func TestQueueMetricsAverageProcessingTime(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queueName := "test-metrics"
	t.Cleanup(func() { _ = m.ClearQueue(ctx, queueName) })

	id, err := m.Enqueue(ctx, queueName, &domain.Envelope{URL: "https://example.com/m", SiteID: "demo"}, "")
	require.NoError(t, err)
	_, err = m.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)
	require.NoError(t, m.CompleteTask(ctx, queueName, id, ""))

	metrics, err := m.GetQueueMetrics(ctx, queueName)
	require.NoError(t, err)
	require.EqualValues(t, 1, metrics.Completed)
	require.GreaterOrEqual(t, metrics.AvgProcessingTime, 0.0)
}

func TestClearQueueLeavesProcessingUntouched(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queueName := "test-clear"
	t.Cleanup(func() { _ = m.ClearQueue(ctx, queueName) })

	processingID, err := m.Enqueue(ctx, queueName, &domain.Envelope{URL: "https://example.com/a", SiteID: "demo"}, "")
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, queueName, &domain.Envelope{URL: "https://example.com/b", SiteID: "demo"}, "")
	require.NoError(t, err)

	task, err := m.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)
	require.Equal(t, processingID, task.ID)

	require.NoError(t, m.ClearQueue(ctx, queueName))

	length, err := m.GetQueueLength(ctx, queueName)
	require.NoError(t, err)
	require.EqualValues(t, 0, length)

	task, err = m.GetTaskStatus(ctx, processingID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, task.Status)
}

func TestParseInfoExtractsBackendStats(t *testing.T) {
	raw := "# Server\r\n" +
		"redis_version:7.2.4\r\n" +
		"uptime_in_seconds:12345\r\n" +
		"# Clients\r\n" +
		"connected_clients:3\r\n" +
		"# Memory\r\n" +
		"used_memory:1048576\r\n" +
		"# Keyspace\r\n" +
		"db0:keys=42,expires=0,avg_ttl=0\r\n" +
		"db1:keys=8,expires=1,avg_ttl=100\r\n"

	stats := parseInfo(raw)

	require.Equal(t, "7.2.4", stats.Version)
	require.EqualValues(t, 12345, stats.UptimeSeconds)
	require.EqualValues(t, 3, stats.ConnectedClients)
	require.EqualValues(t, 1048576, stats.MemoryUsedBytes)
	require.EqualValues(t, 50, stats.TotalKeys)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(s string) error { return simpleErr(s) }
