// Package handler implements the single loop shared by all four pipeline
// stages: lease, process, re-enqueue downstream, and handle failure with
// bounded retry. It is parameterized by the Handler interface so each
// stage supplies only its own domain transform.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/queue"
)

// Stats is the snapshot a handler reports through the admin surface,
// matching base_handler.py's get_stats() shape minus the queue-length
// fields (the loop already has direct Queue Manager access for those).
type Stats struct {
	TasksProcessed int64
	TasksSucceeded int64
	TasksFailed    int64
	StartTime      time.Time
	LastActivity   time.Time
}

// Handler is the capability every stage implements: process one envelope,
// participate in start/stop, and report stats. This is the "common Handler
// capability" named in the design notes.
type Handler interface {
	Process(ctx context.Context, in *domain.Envelope) (*domain.Envelope, error)
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	Stats() Stats
}

// Config parameterizes one stage worker's loop.
type Config struct {
	Stage             string
	WorkerID          string
	InputQueue        string
	OutputQueue       string // empty for the indexer, which has no output
	PollTimeout       time.Duration
	MaxRetries        int
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
}

// Loop runs the shared stage-worker cycle until ctx is cancelled. It is
// grounded directly on the control-flow in the distilled spec's §4.4
// pseudocode and on base_handler.py's _handle_task bookkeeping, adapted to
// the teacher's cooperative select-on-ctx.Done() worker shape
// (natsDistributor.runWorker).
func Loop(ctx context.Context, cfg Config, qm *queue.Manager, h Handler) error {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}

	if err := h.OnStart(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.OnStop(stopCtx); err != nil {
			log.Error("handler stop failed",
				slog.String("stage", cfg.Stage),
				slog.String("worker_id", cfg.WorkerID),
				slog.String("error", err.Error()),
			)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		task, err := qm.Dequeue(ctx, cfg.InputQueue, true, cfg.PollTimeout)
		if err != nil {
			log.Error("dequeue failed",
				slog.String("stage", cfg.Stage),
				slog.String("queue", cfg.InputQueue),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cfg.PollTimeout):
			}
			continue
		}
		if task == nil {
			continue
		}

		runOne(ctx, cfg, qm, h, task, log)
	}
}

// processWithHeartbeat runs the handler's Process call alongside a ticker
// that touches the task's processing-set entry during lease turnover, so a
// task that takes longer than the stall timeout to process doesn't look
// orphaned to the supervisor's recovery sweep.
func processWithHeartbeat(ctx context.Context, cfg Config, qm *queue.Manager, h Handler, task *domain.Task, log *slog.Logger) (*domain.Envelope, error) {
	type result struct {
		out *domain.Envelope
		err error
	}
	done := make(chan result, 1)

	go func() {
		out, err := h.Process(ctx, task.Data)
		done <- result{out, err}
	}()

	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case r := <-done:
			return r.out, r.err
		case <-ticker.C:
			if err := qm.Heartbeat(ctx, cfg.InputQueue, task.ID); err != nil {
				log.Warn("heartbeat failed",
					slog.String("stage", cfg.Stage), slog.String("task_id", task.ID), slog.String("error", err.Error()))
			}
		}
	}
}

func runOne(ctx context.Context, cfg Config, qm *queue.Manager, h Handler, task *domain.Task, log *slog.Logger) {
	output, err := processWithHeartbeat(ctx, cfg, qm, h, task, log)

	if err != nil {
		var skip *domain.SkipError
		if errors.As(err, &skip) {
			if cerr := qm.CompleteTask(ctx, cfg.InputQueue, task.ID, ""); cerr != nil {
				log.Error("complete_task failed after skip",
					slog.String("task_id", task.ID), slog.String("error", cerr.Error()))
			}
			return
		}

		var permanent *domain.PermanentError
		var transient *domain.TransientError
		retry := false
		switch {
		case errors.As(err, &permanent):
			retry = false
		case errors.As(err, &transient):
			retry = task.RetryCount < cfg.MaxRetries
		default:
			// Unclassified error: fail-safe as transient so a bug in a
			// handler's error wrapping doesn't silently drop a task.
			retry = task.RetryCount < cfg.MaxRetries
		}

		if ferr := qm.FailTask(ctx, cfg.InputQueue, task.ID, err, retry); ferr != nil {
			log.Error("fail_task failed",
				slog.String("task_id", task.ID), slog.String("error", ferr.Error()))
		}
		return
	}

	if cerr := qm.CompleteTask(ctx, cfg.InputQueue, task.ID, ""); cerr != nil {
		log.Error("complete_task failed",
			slog.String("task_id", task.ID), slog.String("error", cerr.Error()))
		return
	}

	if cfg.OutputQueue == "" || output == nil {
		return
	}

	if _, eerr := qm.Enqueue(ctx, cfg.OutputQueue, output, ""); eerr != nil {
		// DownstreamEnqueueFailed: the upstream task is already completed.
		// Log the incident; an operator may reseed the originating URL.
		log.Error("downstream enqueue failed",
			slog.String("task_id", task.ID),
			slog.String("output_queue", cfg.OutputQueue),
			slog.String("error", (&domain.DownstreamEnqueueFailedError{Queue: cfg.OutputQueue, Err: eerr}).Error()),
		)
	}
}
