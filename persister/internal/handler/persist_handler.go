// Package handler implements the Persister stage: the (url, content_hash)
// version/index_operation contract against a PostgreSQL document store,
// grounded on base_handler.py's per-stage subclassing pattern and
// vesla0x1's repository-over-pgx/squirrel combination.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	coredomain "github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/handler"
)

// PersistHandler implements core/handler.Handler for the persist stage.
type PersistHandler struct {
	store *documentStore
	rdb   *redis.Client
	stats handler.Stats
}

// New builds a PersistHandler over an already-connected pool and Redis
// client. pool satisfies pgxIface; a *pgxpool.Pool or a pgxmock double both
// work.
func New(pool pgxIface, rdb *redis.Client) *PersistHandler {
	return &PersistHandler{store: newDocumentStore(pool), rdb: rdb}
}

func (h *PersistHandler) OnStart(ctx context.Context) error {
	h.stats.StartTime = time.Now()
	return nil
}
func (h *PersistHandler) OnStop(ctx context.Context) error { return nil }
func (h *PersistHandler) Stats() handler.Stats              { return h.stats }

// Process applies the persist contract: unknown url inserts as new,
// known-same-hash skips, known-different-hash inserts an incremented
// version as an edit, and an external delete signal forwards with empty
// clean_content without touching the version history.
func (h *PersistHandler) Process(ctx context.Context, in *coredomain.Envelope) (*coredomain.Envelope, error) {
	h.stats.TasksProcessed++
	h.stats.LastActivity = time.Now()

	if in == nil || in.URL == "" {
		return nil, coredomain.NewPermanentError(fmt.Errorf("persister: envelope missing url"))
	}

	if in.IndexOperation == coredomain.IndexOperationDelete {
		out := in.Clone()
		out.CleanContent = ""
		h.stats.TasksSucceeded++
		return out, nil
	}

	if in.ContentHash == "" {
		return nil, coredomain.NewPermanentError(fmt.Errorf("persister: envelope missing content_hash"))
	}

	prior, err := h.store.latest(ctx, in.URL)
	if err != nil {
		return nil, coredomain.NewTransientError(fmt.Errorf("persister: lookup latest: %w", err))
	}

	row := documentRow{
		URL:         in.URL,
		ContentHash: in.ContentHash,
		CreatedAt:   time.Now(),
	}
	switch {
	case prior == nil:
		row.Version = 1
		row.IndexOperation = coredomain.IndexOperationNew
	case prior.ContentHash == in.ContentHash:
		h.stats.TasksSucceeded++
		return nil, coredomain.NewSkipError("content hash unchanged since last persist")
	default:
		row.Version = prior.Version + 1
		row.IndexOperation = coredomain.IndexOperationEdit
	}

	if err := h.store.insert(ctx, row, in.CleanContent); err != nil {
		return nil, coredomain.NewTransientError(err)
	}

	// Best-effort, matching the cleaner's own cache-write pattern: the
	// insert above already committed, so a transient error here must not
	// turn into a retry, or the retried Process would see prior.ContentHash
	// == in.ContentHash and wrongly derive a skip for an envelope that was
	// never actually persisted to the index.
	if h.rdb != nil {
		if err := h.rdb.Set(ctx, coredomain.ContentHashKey(in.URL), in.ContentHash, 0).Err(); err != nil {
			slog.Warn("persister: content-hash index write failed", slog.String("url", in.URL), slog.String("error", err.Error()))
		}
	}

	out := in.Clone()
	out.Version = row.Version
	out.IndexOperation = row.IndexOperation

	h.stats.TasksSucceeded++
	return out, nil
}
