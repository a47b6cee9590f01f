package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitesearch/pipeline/core/domain"
)

// TestScenarioFullPipelineQueueFlow walks one URL through every queue hop a
// crawl makes: url -> crawl -> clean -> index, completing each in turn, and
// checks the per-queue completed counters end up exactly where a single
// successful page should leave them.
func TestScenarioFullPipelineQueueFlow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	urlQ, crawlQ, cleanQ, indexQ := "scenario-url", "scenario-crawl", "scenario-clean", "scenario-index"
	t.Cleanup(func() {
		for _, q := range []string{urlQ, crawlQ, cleanQ, indexQ} {
			_ = m.ClearQueue(ctx, q)
		}
	})

	env := &domain.Envelope{URL: "https://example.com/", SiteID: "demo"}
	id, err := m.Enqueue(ctx, urlQ, env, "")
	require.NoError(t, err)

	task, err := m.Dequeue(ctx, urlQ, false, 0)
	require.NoError(t, err)
	require.Equal(t, id, task.ID)
	require.NoError(t, m.CompleteTask(ctx, urlQ, id, ""))

	fetched := env.Clone()
	fetched.StatusCode = 200
	fetched.ContentHash = "h1"
	crawlID, err := m.Enqueue(ctx, crawlQ, fetched, "")
	require.NoError(t, err)
	_, err = m.Dequeue(ctx, crawlQ, false, 0)
	require.NoError(t, err)
	require.NoError(t, m.CompleteTask(ctx, crawlQ, crawlID, ""))

	cleaned := fetched.Clone()
	cleaned.CleanContent = "hello world"
	cleanID, err := m.Enqueue(ctx, cleanQ, cleaned, "")
	require.NoError(t, err)
	_, err = m.Dequeue(ctx, cleanQ, false, 0)
	require.NoError(t, err)
	require.NoError(t, m.CompleteTask(ctx, cleanQ, cleanID, ""))

	persisted := cleaned.Clone()
	persisted.Version = 1
	persisted.IndexOperation = domain.IndexOperationNew
	indexID, err := m.Enqueue(ctx, indexQ, persisted, "")
	require.NoError(t, err)
	_, err = m.Dequeue(ctx, indexQ, false, 0)
	require.NoError(t, err)
	require.NoError(t, m.CompleteTask(ctx, indexQ, indexID, ""))

	for _, q := range []string{urlQ, crawlQ, cleanQ, indexQ} {
		metrics, err := m.GetQueueMetrics(ctx, q)
		require.NoError(t, err)
		require.EqualValues(t, 1, metrics.Completed, "queue %q", q)
	}
}

// TestScenarioStalledTaskRequeuedWithRetryCount mirrors a worker dying
// mid-task: the orphaned entry is reclaimed with fail_task(retry=true) and
// reappears in pending with retry_count incremented, then completes
// normally on its second attempt.
func TestScenarioStalledTaskRequeuedWithRetryCount(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queueName := "scenario-stall"
	t.Cleanup(func() { _ = m.ClearQueue(ctx, queueName) })

	id, err := m.Enqueue(ctx, queueName, &domain.Envelope{URL: "https://example.com/stuck"}, "")
	require.NoError(t, err)

	task, err := m.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)
	require.Equal(t, id, task.ID)

	require.NoError(t, m.FailTask(ctx, queueName, id, errors.New("worker died"), true))

	again, err := m.Dequeue(ctx, queueName, false, 0)
	require.NoError(t, err)
	require.Equal(t, id, again.ID)
	require.Equal(t, 1, again.RetryCount)

	require.NoError(t, m.CompleteTask(ctx, queueName, id, ""))

	metrics, err := m.GetQueueMetrics(ctx, queueName)
	require.NoError(t, err)
	require.EqualValues(t, 1, metrics.Completed)
	require.EqualValues(t, 1, metrics.Retries)
}

// TestScenarioClearQueueLeavesProcessingTasksUntouched enqueues several
// tasks, moves them all into processing, clears the queue, and checks
// pending emptied while every processing entry survives untouched so it can
// still complete or fail on its own.
func TestScenarioClearQueueLeavesProcessingTasksUntouched(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queueName := "scenario-clear-processing"
	t.Cleanup(func() { _ = m.ClearQueue(ctx, queueName) })

	var processingIDs []string
	for i := 0; i < 5; i++ {
		id, err := m.Enqueue(ctx, queueName, &domain.Envelope{URL: "https://example.com/p"}, "")
		require.NoError(t, err)
		task, err := m.Dequeue(ctx, queueName, false, 0)
		require.NoError(t, err)
		processingIDs = append(processingIDs, task.ID)
		_ = id
	}

	require.NoError(t, m.ClearQueue(ctx, queueName))

	length, err := m.GetQueueLength(ctx, queueName)
	require.NoError(t, err)
	require.EqualValues(t, 0, length)

	for _, id := range processingIDs {
		status, err := m.GetTaskStatus(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusProcessing, status.Status)
	}

	for i, id := range processingIDs {
		if i%2 == 0 {
			require.NoError(t, m.CompleteTask(ctx, queueName, id, ""))
		} else {
			require.NoError(t, m.FailTask(ctx, queueName, id, errors.New("boom"), false))
		}
	}

	metrics, err := m.GetQueueMetrics(ctx, queueName)
	require.NoError(t, err)
	require.EqualValues(t, 3, metrics.Completed)
	require.EqualValues(t, 2, metrics.Failed)
}
