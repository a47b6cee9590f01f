// Package metrics wires the Queue Monitor's sampled fields into Prometheus
// collectors, exposed at /metrics, filling the teacher's analogous
// observability surface (the teacher had none wired at this layer, so this
// follows the rest of the pack's prometheus/client_golang usage instead).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sitesearch/pipeline/core/domain"
)

// Collectors holds every gauge/counter the admin surface exposes.
type Collectors struct {
	QueuePending    *prometheus.GaugeVec
	QueueProcessing *prometheus.GaugeVec
	QueueCompleted  *prometheus.GaugeVec
	QueueFailed     *prometheus.GaugeVec
	QueueAvgTimeSec *prometheus.GaugeVec
	StageActive     *prometheus.GaugeVec
	StageDesired    *prometheus.GaugeVec
}

// NewCollectors registers every collector against reg and returns them.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		QueuePending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitesearch", Subsystem: "queue", Name: "pending_tasks",
			Help: "Number of tasks currently pending in the queue.",
		}, []string{"queue"}),
		QueueProcessing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitesearch", Subsystem: "queue", Name: "processing_tasks",
			Help: "Number of tasks currently being processed.",
		}, []string{"queue"}),
		QueueCompleted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitesearch", Subsystem: "queue", Name: "completed_tasks_total",
			Help: "Cumulative count of completed tasks.",
		}, []string{"queue"}),
		QueueFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitesearch", Subsystem: "queue", Name: "failed_tasks_total",
			Help: "Cumulative count of failed tasks.",
		}, []string{"queue"}),
		QueueAvgTimeSec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitesearch", Subsystem: "queue", Name: "avg_processing_time_seconds",
			Help: "Average per-task processing time.",
		}, []string{"queue"}),
		StageActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitesearch", Subsystem: "stage", Name: "active_processes",
			Help: "Number of live worker processes for a stage.",
		}, []string{"stage"}),
		StageDesired: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sitesearch", Subsystem: "stage", Name: "desired_processes",
			Help: "Desired worker-process count for a stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		c.QueuePending, c.QueueProcessing, c.QueueCompleted,
		c.QueueFailed, c.QueueAvgTimeSec, c.StageActive, c.StageDesired,
	)
	return c
}

// ObserveQueue updates the queue-scoped gauges from a sampled metrics
// struct, called from the Monitor's per-sample callback on every sample.
func (c *Collectors) ObserveQueue(m domain.QueueMetrics) {
	c.QueuePending.WithLabelValues(m.Queue).Set(float64(m.Pending))
	c.QueueProcessing.WithLabelValues(m.Queue).Set(float64(m.Processing))
	c.QueueCompleted.WithLabelValues(m.Queue).Set(float64(m.Completed))
	c.QueueFailed.WithLabelValues(m.Queue).Set(float64(m.Failed))
	c.QueueAvgTimeSec.WithLabelValues(m.Queue).Set(m.AvgProcessingTime)
}

// ObserveStage updates the stage-scoped gauges.
func (c *Collectors) ObserveStage(stage string, active, desired int) {
	c.StageActive.WithLabelValues(stage).Set(float64(active))
	c.StageDesired.WithLabelValues(stage).Set(float64(desired))
}
