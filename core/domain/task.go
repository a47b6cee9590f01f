package domain

import "time"

// TaskStatus is the lifecycle state of a Queue Task Record.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusRetry      TaskStatus = "retry"
)

// Task is the queue backend's control record for one envelope. It is
// distinct from the Envelope: the envelope is the domain payload, the
// Task is bookkeeping the queue backend owns.
type Task struct {
	ID          string     `json:"id"`
	Queue       string     `json:"queue"`
	Status      TaskStatus `json:"status"`
	Data        *Envelope  `json:"data"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   time.Time  `json:"started_at,omitempty"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Result      string     `json:"result,omitempty"`
}

// QueueMetrics is the status snapshot for one named queue, sampled by the
// Queue Monitor and surfaced through the admin read surface.
type QueueMetrics struct {
	Queue              string    `json:"queue"`
	Pending            int64     `json:"pending"`
	Processing         int64     `json:"processing"`
	Completed          int64     `json:"completed"`
	Failed             int64     `json:"failed"`
	Retries            int64     `json:"retries"`
	AvgProcessingTime  float64   `json:"avg_processing_time"`
	LastActivity       time.Time `json:"last_activity_time"`
}

// QueueHealthStatus is what the Queue Monitor samples and hands to alert
// callbacks.
type QueueHealthStatus struct {
	Queue              string    `json:"queue"`
	Metrics            QueueMetrics `json:"metrics"`
	Stalled            bool      `json:"stalled"`
	BacklogWarning     bool      `json:"backlog_size_warning"`
	ErrorRateWarning   bool      `json:"error_rate_warning"`
	SampledAt          time.Time `json:"sampled_at"`
}

// Healthy reports whether none of the warning flags are set.
func (s QueueHealthStatus) Healthy() bool {
	return !s.Stalled && !s.BacklogWarning && !s.ErrorRateWarning
}
