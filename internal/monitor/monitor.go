// Package monitor implements the Queue Monitor: it periodically samples
// every queue's metrics, classifies health against stall/backlog/error-rate
// thresholds, keeps a sliding-window metrics history, and dispatches alerts
// to registered callbacks and, when configured, a NATS subject. Grounded on
// queue_monitor.py's QueueMonitor.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/queue"
)

const maxHistorySize = 100

// AlertCallback is invoked whenever a queue samples unhealthy.
type AlertCallback func(domain.QueueHealthStatus)

// SampleCallback is invoked on every sample, healthy or not, so observers
// like Prometheus gauges reflect current state rather than only the
// unhealthy case.
type SampleCallback func(domain.QueueHealthStatus)

// Config mirrors queue_monitor.py's constructor parameters.
type Config struct {
	QueueNames        []string
	CheckInterval     time.Duration
	MaxPending        int64
	MaxErrorRate      float64
	ActivityTimeout   time.Duration
}

// Monitor samples and tracks queue health.
type Monitor struct {
	qm  *queue.Manager
	cfg Config
	log *slog.Logger
	nc  *nats.Conn // optional; nil disables alert publishing

	mu       sync.RWMutex
	health   map[string]domain.QueueHealthStatus
	history  map[string][]domain.QueueMetrics

	callbacksMu sync.Mutex
	callbacks   []AlertCallback

	sampleCallbacksMu sync.Mutex
	sampleCallbacks   []SampleCallback

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Monitor. nc may be nil; when set, every unhealthy sample
// is also published on sitesearch.alerts.{queue}.
func New(qm *queue.Manager, cfg Config, log *slog.Logger, nc *nats.Conn) *Monitor {
	history := make(map[string][]domain.QueueMetrics, len(cfg.QueueNames))
	for _, q := range cfg.QueueNames {
		history[q] = nil
	}
	return &Monitor{
		qm:      qm,
		cfg:     cfg,
		log:     log,
		nc:      nc,
		health:  make(map[string]domain.QueueHealthStatus),
		history: history,
	}
}

// AddAlertCallback registers a callback invoked on every unhealthy sample.
func (m *Monitor) AddAlertCallback(cb AlertCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// AddSampleCallback registers a callback invoked on every sample
// regardless of health, e.g. to keep Prometheus gauges current while the
// pipeline is running normally.
func (m *Monitor) AddSampleCallback(cb SampleCallback) {
	m.sampleCallbacksMu.Lock()
	defer m.sampleCallbacksMu.Unlock()
	m.sampleCallbacks = append(m.sampleCallbacks, cb)
}

// Start launches the sampling loop in a goroutine, matching the daemon
// thread queue_monitor.py's start() spins up.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.loop(ctx)
	m.log.Info("queue monitor started", slog.Duration("interval", m.cfg.CheckInterval))
}

// Stop cancels the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.log.Info("queue monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		for _, q := range m.cfg.QueueNames {
			m.checkQueueHealth(ctx, q)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) checkQueueHealth(ctx context.Context, queueName string) {
	metrics, err := m.qm.GetQueueMetrics(ctx, queueName)
	if err != nil {
		m.log.Error("monitor: sample failed", slog.String("queue", queueName), slog.String("error", err.Error()))
		return
	}

	now := time.Now()

	m.mu.Lock()
	hist := append(m.history[queueName], metrics)
	if len(hist) > maxHistorySize {
		hist = hist[len(hist)-maxHistorySize:]
	}
	m.history[queueName] = hist
	m.mu.Unlock()

	status := domain.QueueHealthStatus{
		Queue:     queueName,
		Metrics:   metrics,
		SampledAt: now,
	}

	var reasons []string

	if metrics.Pending > m.cfg.MaxPending {
		status.BacklogWarning = true
		reasons = append(reasons, fmt.Sprintf("backlog too large (%d>%d)", metrics.Pending, m.cfg.MaxPending))
	}

	total := metrics.Completed + metrics.Failed
	if total > 0 {
		errorRate := float64(metrics.Failed) / float64(total)
		if errorRate > m.cfg.MaxErrorRate {
			status.ErrorRateWarning = true
			reasons = append(reasons, fmt.Sprintf("error rate too high (%.2f%%>%.2f%%)", errorRate*100, m.cfg.MaxErrorRate*100))
		}
	}

	if metrics.Pending+metrics.Processing > 0 && now.Sub(metrics.LastActivity) > m.cfg.ActivityTimeout {
		status.Stalled = true
		reasons = append(reasons, fmt.Sprintf("no activity for %s", now.Sub(metrics.LastActivity).Round(time.Second)))
	}

	m.mu.Lock()
	m.health[queueName] = status
	m.mu.Unlock()

	m.dispatchSample(status)

	if !status.Healthy() {
		m.log.Warn("queue unhealthy", slog.String("queue", queueName), slog.Any("reasons", reasons))
		m.dispatchAlert(status)
	}
}

func (m *Monitor) dispatchSample(status domain.QueueHealthStatus) {
	m.sampleCallbacksMu.Lock()
	callbacks := append([]SampleCallback(nil), m.sampleCallbacks...)
	m.sampleCallbacksMu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("monitor: sample callback panicked", slog.Any("recover", r))
				}
			}()
			cb(status)
		}()
	}
}

func (m *Monitor) dispatchAlert(status domain.QueueHealthStatus) {
	m.callbacksMu.Lock()
	callbacks := append([]AlertCallback(nil), m.callbacks...)
	m.callbacksMu.Unlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("monitor: alert callback panicked", slog.Any("recover", r))
				}
			}()
			cb(status)
		}()
	}

	if m.nc == nil {
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		m.log.Error("monitor: cannot marshal alert", slog.String("error", err.Error()))
		return
	}
	subject := "sitesearch.alerts." + status.Queue
	if err := m.nc.Publish(subject, payload); err != nil {
		m.log.Error("monitor: nats publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

// GetQueueHealth returns the last sampled health for one queue.
func (m *Monitor) GetQueueHealth(queueName string) (domain.QueueHealthStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.health[queueName]
	return s, ok
}

// GetAllQueueHealth returns a snapshot of every tracked queue's health.
func (m *Monitor) GetAllQueueHealth() map[string]domain.QueueHealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.QueueHealthStatus, len(m.health))
	for k, v := range m.health {
		out[k] = v
	}
	return out
}

// GetMetricsHistory returns the sliding-window metrics history for one queue.
func (m *Monitor) GetMetricsHistory(queueName string) []domain.QueueMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.QueueMetrics(nil), m.history[queueName]...)
}

// SummaryReport aggregates current health across every tracked queue,
// matching get_summary_report's shape.
type SummaryReport struct {
	TotalQueues       int                        `json:"total_queues"`
	UnhealthyQueues   int                        `json:"unhealthy_queues"`
	UnhealthyDetails  []domain.QueueHealthStatus `json:"unhealthy_details"`
	TotalPending      int64                      `json:"total_pending_tasks"`
	TotalProcessing   int64                      `json:"total_processing_tasks"`
	TotalFailed       int64                      `json:"total_failed_tasks"`
	SampledAt         time.Time                  `json:"sampled_at"`
}

// GetSummaryReport builds an aggregate report across all tracked queues.
func (m *Monitor) GetSummaryReport() SummaryReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := SummaryReport{TotalQueues: len(m.cfg.QueueNames), SampledAt: time.Now()}
	for _, h := range m.health {
		report.TotalPending += h.Metrics.Pending
		report.TotalProcessing += h.Metrics.Processing
		report.TotalFailed += h.Metrics.Failed
		if !h.Healthy() {
			report.UnhealthyQueues++
			report.UnhealthyDetails = append(report.UnhealthyDetails, h)
		}
	}
	return report
}
