// Package transport is the admin HTTP read/write surface: status,
// per-queue metrics, worker listing, seed/scale/restart/clear-queue/
// toggle-monitor, matching the shape of the teacher's
// api/internal/transport/handler.go but routed with chi instead of the
// teacher's bare net/http mux, since the admin surface here needs a
// larger route table with path parameters.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	idomain "github.com/sitesearch/pipeline/internal/domain"
	"github.com/sitesearch/pipeline/internal/infra/procstat"
)

// Usecase is the admin application layer the transport dispatches to.
type Usecase interface {
	SeedURL(ctx context.Context, queueName, url, siteID string) (string, error)
	ScaleStage(ctx context.Context, stage string, targetCount int) error
	RestartWorker(ctx context.Context, stage, workerID string) error
	ClearQueue(ctx context.Context, queueName string) error
	ToggleMonitoring(ctx context.Context) bool
	GetStatus(ctx context.Context, queueNames []string) (map[string]idomain.StageStatus, map[string]idomain.QueueMetricsDTO, bool)
	GetQueueMetrics(ctx context.Context, queueName string) (idomain.QueueMetricsDTO, error)
	GetBackendStats(ctx context.Context) (idomain.BackendStats, error)
}

type handler struct {
	uc         Usecase
	sampler    *procstat.Sampler
	queueNames []string
}

// NewRouter builds the admin HTTP surface.
func NewRouter(uc Usecase, queueNames []string) http.Handler {
	h := &handler{uc: uc, sampler: procstat.New(), queueNames: queueNames}

	r := chi.NewRouter()
	r.Use(LogMiddleware, WithRecover)

	r.Get("/admin/status", h.status)
	r.Get("/admin/queues/{queue}", h.queueStatus)
	r.Get("/admin/workers", h.workers)
	r.Post("/admin/seed", h.seed)
	r.Post("/admin/stages/{stage}/scale", h.scale)
	r.Post("/admin/workers/{id}/restart", h.restart)
	r.Post("/admin/queues/{queue}/clear", h.clearQueue)
	r.Post("/admin/monitor/toggle", h.toggleMonitor)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	stages, metrics, monitoringOn := h.uc.GetStatus(r.Context(), h.queueNames)

	for _, st := range stages {
		for i := range st.Workers {
			if st.Workers[i].PID == 0 {
				continue
			}
			if sample, err := h.sampler.Sample(st.Workers[i].PID); err == nil {
				st.Workers[i].MemoryRSSMB = sample.MemoryRSSMB
				st.Workers[i].CPUPercent = sample.CPUPercent
			}
		}
	}

	snap := idomain.Snapshot{
		Stages:       stages,
		QueueMetrics: metrics,
		MonitoringOn: monitoringOn,
		SampledAt:    time.Now(),
	}

	if sample, err := h.sampler.Sample(os.Getpid()); err == nil {
		snap.Process = idomain.ProcessStats{
			PID:         sample.PID,
			Name:        "orchestrator",
			MemoryRSSMB: sample.MemoryRSSMB,
			CPUPercent:  sample.CPUPercent,
		}
	} else {
		slog.Warn("status: resource sample failed", slog.String("error", err.Error()))
	}

	if backend, err := h.uc.GetBackendStats(r.Context()); err == nil {
		snap.Backend = backend
	} else {
		slog.Warn("status: backend stats failed", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) queueStatus(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")
	metrics, err := h.uc.GetQueueMetrics(r.Context(), queueName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *handler) workers(w http.ResponseWriter, r *http.Request) {
	stages, _, _ := h.uc.GetStatus(r.Context(), h.queueNames)
	var workers []idomain.Worker
	for _, s := range stages {
		workers = append(workers, s.Workers...)
	}
	writeJSON(w, http.StatusOK, workers)
}

func (h *handler) seed(w http.ResponseWriter, r *http.Request) {
	var req idomain.SeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	queueName := r.URL.Query().Get("queue")
	if queueName == "" {
		queueName = "url"
	}

	taskID, err := h.uc.SeedURL(r.Context(), queueName, req.URL, req.SiteID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (h *handler) scale(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")

	var req idomain.ScaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.uc.ScaleStage(r.Context(), stage, req.TargetCount); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stage": stage, "target_count": req.TargetCount})
}

func (h *handler) restart(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")
	stage := r.URL.Query().Get("stage")

	if err := h.uc.RestartWorker(r.Context(), stage, workerID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"worker_id": workerID, "status": "restarted"})
}

func (h *handler) clearQueue(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queue")
	if err := h.uc.ClearQueue(r.Context(), queueName); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"queue": queueName, "status": "cleared"})
}

func (h *handler) toggleMonitor(w http.ResponseWriter, r *http.Request) {
	on := h.uc.ToggleMonitoring(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"monitoring_on": on})
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, idomain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
