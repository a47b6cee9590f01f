// Package domain holds the orchestrator-facing DTOs consumed by the admin
// read/write surface — distinct from core/domain, which holds the
// pipeline-wide task/envelope types every service shares.
package domain

import "time"

// WorkerStatus is the Supervisor's lifecycle state for one worker process.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerRunning  WorkerStatus = "running"
	WorkerStopping WorkerStatus = "stopping"
	WorkerStopped  WorkerStatus = "stopped"
)

// Worker is one worker-process descriptor for §6.3's workers[] row: id,
// stage, pid, status, memory_rss_mb, cpu_percent, create_time. It carries
// no process-name field.
type Worker struct {
	ID           string       `json:"id"`
	Stage        string       `json:"stage"`
	PID          int          `json:"pid"`
	Status       WorkerStatus `json:"status"`
	MemoryRSSMB  float64      `json:"memory_rss_mb"`
	CPUPercent   float64      `json:"cpu_percent"`
	CreateTime   time.Time    `json:"create_time"`
}

// StageStatus is the per-stage section of the admin read surface.
type StageStatus struct {
	Stage          string                 `json:"stage"`
	ActiveProcesses int                   `json:"active_processes"`
	DesiredCount   int                    `json:"desired_count"`
	Workers        []Worker               `json:"workers"`
	Config         map[string]any         `json:"config"`
}

// BackendStats is the queue backend's own stats, per §6.3.
type BackendStats struct {
	Version          string `json:"version"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	MemoryUsedBytes  int64  `json:"memory_used_bytes"`
	TotalKeys        int64  `json:"total_keys"`
	ConnectedClients int64  `json:"connected_clients"`
}

// ProcessStats is the orchestrator's own resource usage, per §6.3's "main
// process resources".
type ProcessStats struct {
	PID         int     `json:"pid"`
	Name        string  `json:"name"`
	MemoryRSSMB float64 `json:"memory_rss_mb"`
	CPUPercent  float64 `json:"cpu_percent"`
}

// Snapshot is the full admin read-surface payload, assembled by the admin
// status handler from Supervisor.GetStatus and its own sampling.
type Snapshot struct {
	Stages          map[string]StageStatus    `json:"stages"`
	QueueMetrics    map[string]QueueMetricsDTO `json:"queue_metrics"`
	Backend         BackendStats              `json:"backend"`
	Process         ProcessStats              `json:"process"`
	MonitoringOn    bool                      `json:"monitoring_on"`
	SampledAt       time.Time                 `json:"sampled_at"`
}

// QueueMetricsDTO mirrors core/domain.QueueMetrics for JSON transport
// without importing core/domain's richer internal type directly into the
// wire contract.
type QueueMetricsDTO struct {
	Queue             string    `json:"queue"`
	Pending           int64     `json:"pending"`
	Processing        int64     `json:"processing"`
	Completed         int64     `json:"completed"`
	Failed            int64     `json:"failed"`
	Retries           int64     `json:"retries"`
	AvgProcessingTime float64   `json:"avg_processing_time"`
	LastActivity      time.Time `json:"last_activity_time"`
}

// SeedRequest is the admin write-surface payload for seeding a URL.
type SeedRequest struct {
	URL    string `json:"url"`
	SiteID string `json:"site_id"`
}

// ScaleRequest is the admin write-surface payload for scaling a stage.
type ScaleRequest struct {
	TargetCount int `json:"target_count"`
}

// ErrorResponse is the uniform error body for the admin API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
