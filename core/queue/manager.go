// Package queue implements the Queue Manager: atomic task-state
// transitions and per-queue metrics on top of Redis. It is the sole
// authoritative shared state in the pipeline (§5) — every other component
// reaches it only through this package.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sitesearch/pipeline/core/domain"
)

// Manager is the Queue Manager. It is grounded directly on queue_manager.py's
// Redis command sequencing: pending is a list (LPUSH/BRPOP), processing/
// completed/failed are sets (SADD/SREM), per-task metadata is one JSON
// string (SET/GET), and
// per-queue counters are a hash updated with HINCRBY/HINCRBYFLOAT.
type Manager struct {
	rdb *redis.Client
}

// New builds a Queue Manager over an already-connected Redis client.
func New(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

type taskMeta struct {
	ID          string            `json:"id"`
	Queue       string            `json:"queue"`
	Status      domain.TaskStatus `json:"status"`
	Data        json.RawMessage   `json:"data"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	RetryCount  int               `json:"retry_count"`
	Result      string            `json:"result,omitempty"`
}

func (m *taskMeta) toTask() (*domain.Task, error) {
	var env *domain.Envelope
	if len(m.Data) > 0 {
		env = &domain.Envelope{}
		if err := json.Unmarshal(m.Data, env); err != nil {
			return nil, &domain.CorruptTaskError{TaskID: m.ID, Err: err}
		}
	}
	return &domain.Task{
		ID:          m.ID,
		Queue:       m.Queue,
		Status:      m.Status,
		Data:        env,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Error:       m.Error,
		RetryCount:  m.RetryCount,
		Result:      m.Result,
	}, nil
}

// Enqueue creates metadata for a new task, pushes its id onto the pending
// list, and initializes counters. If taskID is empty a new uuid is
// assigned. Returns the assigned id.
func (m *Manager) Enqueue(ctx context.Context, queueName string, data *domain.Envelope, taskID string) (string, error) {
	if taskID == "" {
		taskID = uuid.NewString()
	}

	rawData, err := json.Marshal(data)
	if err != nil {
		return "", &domain.CorruptTaskError{TaskID: taskID, Err: err}
	}

	now := time.Now()
	meta := taskMeta{
		ID:        taskID,
		Queue:     queueName,
		Status:    domain.StatusPending,
		Data:      rawData,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return "", &domain.CorruptTaskError{TaskID: taskID, Err: err}
	}

	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, domain.TaskMetaKey(taskID), rawMeta, 0)
	pipe.LPush(ctx, domain.PendingKey(queueName), taskID)
	pipe.HIncrBy(ctx, domain.StatsKey(queueName), "pending", 1)
	pipe.Set(ctx, domain.LastActivityKey(queueName), now.Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", &domain.BackendUnavailableError{Op: "enqueue", Err: err}
	}

	return taskID, nil
}

// Dequeue atomically pops one id from the pending list, moves it into the
// processing set, stamps started_at, and returns the full task record. If
// block is true it waits up to timeout for an item and returns
// (nil, nil) on timeout (spec: "returns none on timeout").
func (m *Manager) Dequeue(ctx context.Context, queueName string, block bool, timeout time.Duration) (*domain.Task, error) {
	var taskID string

	if block {
		res, err := m.rdb.BRPop(ctx, timeout, domain.PendingKey(queueName)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, &domain.BackendUnavailableError{Op: "dequeue", Err: err}
		}
		// BRPop returns [key, value].
		taskID = res[1]
	} else {
		res, err := m.rdb.RPop(ctx, domain.PendingKey(queueName)).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, &domain.BackendUnavailableError{Op: "dequeue", Err: err}
		}
		taskID = res
	}

	meta, err := m.loadMeta(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	meta.Status = domain.StatusProcessing
	meta.StartedAt = now
	meta.UpdatedAt = now

	if err := m.saveMeta(ctx, taskID, meta); err != nil {
		return nil, err
	}

	pipe := m.rdb.TxPipeline()
	pipe.SAdd(ctx, domain.ProcessingKey(queueName), taskID)
	pipe.HIncrBy(ctx, domain.StatsKey(queueName), "pending", -1)
	pipe.HIncrBy(ctx, domain.StatsKey(queueName), "processing", 1)
	pipe.Set(ctx, domain.LastActivityKey(queueName), now.Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, &domain.BackendUnavailableError{Op: "dequeue", Err: err}
	}

	return meta.toTask()
}

// CompleteTask removes a task from processing, inserts it into completed,
// stamps completed_at, and rolls the processing time into the queue's
// running average. No-op if the task is not in processing.
func (m *Manager) CompleteTask(ctx context.Context, queueName, taskID string, result string) error {
	isMember, err := m.rdb.SIsMember(ctx, domain.ProcessingKey(queueName), taskID).Result()
	if err != nil {
		return &domain.BackendUnavailableError{Op: "complete_task", Err: err}
	}
	if !isMember {
		return nil
	}

	meta, err := m.loadMeta(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	meta.Status = domain.StatusCompleted
	meta.CompletedAt = now
	meta.UpdatedAt = now
	meta.Result = result

	if err := m.saveMeta(ctx, taskID, meta); err != nil {
		return err
	}

	processingTime := now.Sub(meta.StartedAt).Seconds()

	pipe := m.rdb.TxPipeline()
	pipe.SRem(ctx, domain.ProcessingKey(queueName), taskID)
	pipe.SAdd(ctx, domain.CompletedKey(queueName), taskID)
	pipe.HIncrBy(ctx, domain.StatsKey(queueName), "processing", -1)
	pipe.HIncrBy(ctx, domain.StatsKey(queueName), "completed_count", 1)
	pipe.HIncrByFloat(ctx, domain.StatsKey(queueName), "total_processing_time", processingTime)
	pipe.Set(ctx, domain.LastActivityKey(queueName), now.Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.BackendUnavailableError{Op: "complete_task", Err: err}
	}

	return nil
}

// FailTask moves a task to failed, or — if retry is true — increments its
// retry_count, clears started_at, and re-pushes it onto pending with
// status pending. The Queue Manager itself enforces no retry ceiling; that
// is the caller's (the handler loop's) responsibility.
func (m *Manager) FailTask(ctx context.Context, queueName, taskID string, cause error, retry bool) error {
	meta, err := m.loadMeta(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	pipe := m.rdb.TxPipeline()
	pipe.SRem(ctx, domain.ProcessingKey(queueName), taskID)
	pipe.HIncrBy(ctx, domain.StatsKey(queueName), "processing", -1)

	if retry {
		meta.Status = domain.StatusPending
		meta.RetryCount++
		meta.StartedAt = time.Time{}
		meta.Error = errMsg
		meta.UpdatedAt = now

		pipe.LPush(ctx, domain.PendingKey(queueName), taskID)
		pipe.HIncrBy(ctx, domain.StatsKey(queueName), "pending", 1)
		pipe.HIncrBy(ctx, domain.StatsKey(queueName), "retries", 1)
	} else {
		meta.Status = domain.StatusFailed
		meta.Error = errMsg
		meta.UpdatedAt = now

		pipe.SAdd(ctx, domain.FailedKey(queueName), taskID)
		pipe.HIncrBy(ctx, domain.StatsKey(queueName), "failed_count", 1)
	}

	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return &domain.CorruptTaskError{TaskID: taskID, Err: err}
	}
	pipe.Set(ctx, domain.TaskMetaKey(taskID), rawMeta, 0)
	pipe.Set(ctx, domain.LastActivityKey(queueName), now.Format(time.RFC3339Nano), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.BackendUnavailableError{Op: "fail_task", Err: err}
	}

	return nil
}

// Heartbeat refreshes a processing task's updated_at and the queue's
// last-activity timestamp without altering status, so a worker holding a
// long-running task can distinguish itself from one that has actually
// stalled. It is a no-op if the task is no longer in the processing set
// (e.g. a sweep already reclaimed it out from under the worker).
func (m *Manager) Heartbeat(ctx context.Context, queueName, taskID string) error {
	isMember, err := m.rdb.SIsMember(ctx, domain.ProcessingKey(queueName), taskID).Result()
	if err != nil {
		return &domain.BackendUnavailableError{Op: "heartbeat", Err: err}
	}
	if !isMember {
		return nil
	}

	meta, err := m.loadMeta(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	meta.UpdatedAt = now
	if err := m.saveMeta(ctx, taskID, meta); err != nil {
		return err
	}

	if err := m.rdb.Set(ctx, domain.LastActivityKey(queueName), now.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return &domain.BackendUnavailableError{Op: "heartbeat", Err: err}
	}
	return nil
}

// GetTaskStatus returns the full task record for an id.
func (m *Manager) GetTaskStatus(ctx context.Context, taskID string) (*domain.Task, error) {
	meta, err := m.loadMeta(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return meta.toTask()
}

// BackendStats is the parsed subset of Redis's INFO output the admin read
// surface reports for the queue backend itself (§6.3's "version, uptime,
// memory, total keys, connected clients").
type BackendStats struct {
	Version          string
	UptimeSeconds    int64
	MemoryUsedBytes  int64
	TotalKeys        int64
	ConnectedClients int64
}

// GetBackendStats runs Redis INFO and parses the fields the admin surface
// needs out of its flat "key:value\r\n" sections.
func (m *Manager) GetBackendStats(ctx context.Context) (BackendStats, error) {
	raw, err := m.rdb.Info(ctx, "server", "memory", "clients", "keyspace").Result()
	if err != nil {
		return BackendStats{}, &domain.BackendUnavailableError{Op: "get_backend_stats", Err: err}
	}
	return parseInfo(raw), nil
}

func parseInfo(raw string) BackendStats {
	fields := make(map[string]string)
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[k] = v
	}

	stats := BackendStats{
		Version:          fields["redis_version"],
		UptimeSeconds:    parseInt(fields["uptime_in_seconds"]),
		MemoryUsedBytes:  parseInt(fields["used_memory"]),
		ConnectedClients: parseInt(fields["connected_clients"]),
	}

	for k, v := range fields {
		if !strings.HasPrefix(k, "db") {
			continue
		}
		for _, part := range strings.Split(v, ",") {
			if n, ok := strings.CutPrefix(part, "keys="); ok {
				stats.TotalKeys += parseInt(n)
			}
		}
	}

	return stats
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// ListProcessing returns the task ids currently in a queue's processing
// set, consumed by the Supervisor's stall sweep to find tasks orphaned by
// a dead worker.
func (m *Manager) ListProcessing(ctx context.Context, queueName string) ([]string, error) {
	ids, err := m.rdb.SMembers(ctx, domain.ProcessingKey(queueName)).Result()
	if err != nil {
		return nil, &domain.BackendUnavailableError{Op: "list_processing", Err: err}
	}
	return ids, nil
}

// GetQueueLength returns the pending-list length for a queue.
func (m *Manager) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	n, err := m.rdb.LLen(ctx, domain.PendingKey(queueName)).Result()
	if err != nil {
		return 0, &domain.BackendUnavailableError{Op: "get_queue_length", Err: err}
	}
	return n, nil
}

// GetQueueMetrics reads the stats hash and derives average processing
// time, matching get_queue_metrics in queue_manager.py.
func (m *Manager) GetQueueMetrics(ctx context.Context, queueName string) (domain.QueueMetrics, error) {
	stats, err := m.rdb.HGetAll(ctx, domain.StatsKey(queueName)).Result()
	if err != nil {
		return domain.QueueMetrics{}, &domain.BackendUnavailableError{Op: "get_queue_metrics", Err: err}
	}

	pending, err := m.rdb.LLen(ctx, domain.PendingKey(queueName)).Result()
	if err != nil {
		return domain.QueueMetrics{}, &domain.BackendUnavailableError{Op: "get_queue_metrics", Err: err}
	}
	processing, err := m.rdb.SCard(ctx, domain.ProcessingKey(queueName)).Result()
	if err != nil {
		return domain.QueueMetrics{}, &domain.BackendUnavailableError{Op: "get_queue_metrics", Err: err}
	}
	completed, err := m.rdb.SCard(ctx, domain.CompletedKey(queueName)).Result()
	if err != nil {
		return domain.QueueMetrics{}, &domain.BackendUnavailableError{Op: "get_queue_metrics", Err: err}
	}
	failed, err := m.rdb.SCard(ctx, domain.FailedKey(queueName)).Result()
	if err != nil {
		return domain.QueueMetrics{}, &domain.BackendUnavailableError{Op: "get_queue_metrics", Err: err}
	}

	var avg float64
	completedCount := parseFloat(stats["completed_count"])
	totalTime := parseFloat(stats["total_processing_time"])
	if completedCount > 0 {
		avg = totalTime / completedCount
	}

	var lastActivity time.Time
	if raw, err := m.rdb.Get(ctx, domain.LastActivityKey(queueName)).Result(); err == nil {
		lastActivity, _ = time.Parse(time.RFC3339Nano, raw)
	}

	return domain.QueueMetrics{
		Queue:             queueName,
		Pending:           pending,
		Processing:        processing,
		Completed:         completed,
		Failed:            failed,
		Retries:           int64(parseFloat(stats["retries"])),
		AvgProcessingTime: avg,
		LastActivity:      lastActivity,
	}, nil
}

// ClearQueue deletes the pending/completed/failed/stats keys for a queue
// and the metadata for every task id they reference. It does NOT wait for
// tasks currently being processed elsewhere to finish — S6 requires the
// processing set be left untouched, so the processing set and its tasks'
// metadata are not deleted.
func (m *Manager) ClearQueue(ctx context.Context, queueName string) error {
	completedIDs, err := m.rdb.SMembers(ctx, domain.CompletedKey(queueName)).Result()
	if err != nil {
		return &domain.BackendUnavailableError{Op: "clear_queue", Err: err}
	}
	failedIDs, err := m.rdb.SMembers(ctx, domain.FailedKey(queueName)).Result()
	if err != nil {
		return &domain.BackendUnavailableError{Op: "clear_queue", Err: err}
	}
	pendingIDs, err := m.rdb.LRange(ctx, domain.PendingKey(queueName), 0, -1).Result()
	if err != nil {
		return &domain.BackendUnavailableError{Op: "clear_queue", Err: err}
	}

	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, domain.PendingKey(queueName))
	pipe.Del(ctx, domain.CompletedKey(queueName))
	pipe.Del(ctx, domain.FailedKey(queueName))
	pipe.Del(ctx, domain.StatsKey(queueName))

	for _, id := range pendingIDs {
		pipe.Del(ctx, domain.TaskMetaKey(id))
	}
	for _, id := range completedIDs {
		pipe.Del(ctx, domain.TaskMetaKey(id))
	}
	for _, id := range failedIDs {
		pipe.Del(ctx, domain.TaskMetaKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.BackendUnavailableError{Op: "clear_queue", Err: err}
	}

	return nil
}

func (m *Manager) loadMeta(ctx context.Context, taskID string) (*taskMeta, error) {
	raw, err := m.rdb.Get(ctx, domain.TaskMetaKey(taskID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, &domain.BackendUnavailableError{Op: "load_meta", Err: err}
	}

	var meta taskMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, &domain.CorruptTaskError{TaskID: taskID, Err: err}
	}
	return &meta, nil
}

func (m *Manager) saveMeta(ctx context.Context, taskID string, meta *taskMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return &domain.CorruptTaskError{TaskID: taskID, Err: err}
	}
	if err := m.rdb.Set(ctx, domain.TaskMetaKey(taskID), raw, 0).Err(); err != nil {
		return &domain.BackendUnavailableError{Op: "save_meta", Err: err}
	}
	return nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	if err != nil {
		return 0
	}
	return f
}
