// Package handler implements the Cleaner stage: strategy dispatch by
// mimetype plus the content-hash skip-path read directly against Redis,
// grounded on base_handler.py's per-stage subclassing pattern and §4.4.2's
// skip-path addition.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	coredomain "github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/handler"
)

// CleanHandler implements core/handler.Handler for the clean stage.
type CleanHandler struct {
	rdb   *redis.Client
	stats handler.Stats
}

// New builds a CleanHandler over an already-connected Redis client, used
// for the content-hash skip-path lookup and the clean-content cache.
func New(rdb *redis.Client) *CleanHandler {
	return &CleanHandler{rdb: rdb}
}

func (h *CleanHandler) OnStart(ctx context.Context) error {
	h.stats.StartTime = time.Now()
	return nil
}
func (h *CleanHandler) OnStop(ctx context.Context) error { return nil }
func (h *CleanHandler) Stats() handler.Stats              { return h.stats }

// Process cleans in.Content per its mimetype's strategy and checks the
// content-hash skip-path so a page whose hash is already persisted can
// skip the conversion work. The drop decision itself belongs to the
// persister, which compares content_hash against what it last stored, so
// a hash match here still forwards a populated envelope rather than
// short-circuiting the pipeline.
func (h *CleanHandler) Process(ctx context.Context, in *coredomain.Envelope) (*coredomain.Envelope, error) {
	h.stats.TasksProcessed++
	h.stats.LastActivity = time.Now()

	if in == nil {
		return nil, coredomain.NewPermanentError(fmt.Errorf("cleaner: nil envelope"))
	}

	out := in.Clone()

	if in.ContentHash != "" && in.URL != "" {
		existing, err := h.rdb.Get(ctx, coredomain.ContentHashKey(in.URL)).Result()
		if err != nil && err != redis.Nil {
			return nil, coredomain.NewTransientError(fmt.Errorf("cleaner: skip-path lookup: %w", err))
		}
		if err == nil && existing == in.ContentHash {
			if cached, cerr := h.rdb.Get(ctx, coredomain.CleanContentKey(in.URL)).Result(); cerr == nil {
				out.CleanContent = cached
				h.stats.TasksSucceeded++
				return out, nil
			}
		}
	}

	strategy := strategyFor(in.MimeType)
	clean, err := strategy.Clean(in.Content)
	if err != nil {
		h.stats.TasksFailed++
		return nil, coredomain.NewPermanentError(err)
	}
	out.CleanContent = clean

	if in.URL != "" {
		if err := h.rdb.Set(ctx, coredomain.CleanContentKey(in.URL), clean, 0).Err(); err != nil {
			h.stats.TasksSucceeded++
			return out, nil
		}
	}

	h.stats.TasksSucceeded++
	return out, nil
}
