// Package usecase is the admin surface's application layer: it mediates
// between the HTTP transport and the Supervisor/Monitor/Queue Manager,
// matching the teacher's api/internal/usecase/usecase.go shape.
package usecase

import (
	"context"
	"fmt"

	"github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/queue"
	idomain "github.com/sitesearch/pipeline/internal/domain"
)

// Supervisor is the subset of supervisor.Supervisor the admin surface needs.
type Supervisor interface {
	ScaleStage(ctx context.Context, stage string, targetCount int) error
	RestartWorker(ctx context.Context, stage, workerID string) error
	AddURLToQueue(ctx context.Context, queueName, url, siteID string) (string, error)
	GetStatus() map[string]idomain.StageStatus
}

// Monitor is the subset of monitor.Monitor the admin surface needs.
type Monitor interface {
	GetAllQueueHealth() map[string]domain.QueueHealthStatus
	Start(ctx context.Context)
	Stop()
}

type usecase struct {
	qm         *queue.Manager
	supervisor Supervisor
	monitor    Monitor

	monitoringOn bool
}

// New constructs the admin usecase layer.
func New(qm *queue.Manager, supervisor Supervisor, monitor Monitor) *usecase {
	return &usecase{qm: qm, supervisor: supervisor, monitor: monitor, monitoringOn: true}
}

// SeedURL enqueues a new URL into the named fetch queue.
func (uc *usecase) SeedURL(ctx context.Context, queueName, url, siteID string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("usecase: url is required")
	}
	return uc.supervisor.AddURLToQueue(ctx, queueName, url, siteID)
}

// ScaleStage resizes a stage's worker pool.
func (uc *usecase) ScaleStage(ctx context.Context, stage string, targetCount int) error {
	if targetCount < 0 {
		return fmt.Errorf("usecase: target_count must be >= 0")
	}
	return uc.supervisor.ScaleStage(ctx, stage, targetCount)
}

// RestartWorker stops and respawns one worker.
func (uc *usecase) RestartWorker(ctx context.Context, stage, workerID string) error {
	return uc.supervisor.RestartWorker(ctx, stage, workerID)
}

// ClearQueue empties one queue's pending/completed/failed state.
func (uc *usecase) ClearQueue(ctx context.Context, queueName string) error {
	return uc.qm.ClearQueue(ctx, queueName)
}

// ToggleMonitoring flips the Monitor's running state.
func (uc *usecase) ToggleMonitoring(ctx context.Context) bool {
	if uc.monitoringOn {
		uc.monitor.Stop()
		uc.monitoringOn = false
	} else {
		uc.monitor.Start(ctx)
		uc.monitoringOn = true
	}
	return uc.monitoringOn
}

// GetStatus assembles the admin read surface's per-stage view, merged with
// queue health; caller fills in Backend/Process from its own sampling.
func (uc *usecase) GetStatus(ctx context.Context, queueNames []string) (map[string]idomain.StageStatus, map[string]idomain.QueueMetricsDTO, bool) {
	stages := uc.supervisor.GetStatus()

	metrics := make(map[string]idomain.QueueMetricsDTO, len(queueNames))
	for _, q := range uc.monitor.GetAllQueueHealth() {
		metrics[q.Queue] = idomain.QueueMetricsDTO{
			Queue:             q.Metrics.Queue,
			Pending:           q.Metrics.Pending,
			Processing:        q.Metrics.Processing,
			Completed:         q.Metrics.Completed,
			Failed:            q.Metrics.Failed,
			Retries:           q.Metrics.Retries,
			AvgProcessingTime: q.Metrics.AvgProcessingTime,
			LastActivity:      q.Metrics.LastActivity,
		}
	}

	return stages, metrics, uc.monitoringOn
}

// GetBackendStats reports the queue backend's own health (§6.3), sourced
// directly from Redis INFO rather than anything the Monitor samples.
func (uc *usecase) GetBackendStats(ctx context.Context) (idomain.BackendStats, error) {
	stats, err := uc.qm.GetBackendStats(ctx)
	if err != nil {
		return idomain.BackendStats{}, err
	}
	return idomain.BackendStats{
		Version:          stats.Version,
		UptimeSeconds:    stats.UptimeSeconds,
		MemoryUsedBytes:  stats.MemoryUsedBytes,
		TotalKeys:        stats.TotalKeys,
		ConnectedClients: stats.ConnectedClients,
	}, nil
}

// GetQueueMetrics fetches a single queue's current metrics directly from
// the backend (bypassing the Monitor's cached sample), for the
// per-queue status endpoint.
func (uc *usecase) GetQueueMetrics(ctx context.Context, queueName string) (idomain.QueueMetricsDTO, error) {
	m, err := uc.qm.GetQueueMetrics(ctx, queueName)
	if err != nil {
		return idomain.QueueMetricsDTO{}, err
	}
	return idomain.QueueMetricsDTO{
		Queue:             m.Queue,
		Pending:           m.Pending,
		Processing:        m.Processing,
		Completed:         m.Completed,
		Failed:            m.Failed,
		Retries:           m.Retries,
		AvgProcessingTime: m.AvgProcessingTime,
		LastActivity:      m.LastActivity,
	}, nil
}
