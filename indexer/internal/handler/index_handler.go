// Package handler implements the Indexer stage: the terminal stage that
// chunks clean_content, embeds each chunk, and upserts (or removes) the
// result in a vector store keyed by content_hash, honouring
// index_operation the way the persister hands it off.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/sitesearch/pipeline/core/chunk"
	coredomain "github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/core/handler"
)

// IndexHandler implements core/handler.Handler for the index stage.
type IndexHandler struct {
	embed       EmbeddingProvider
	store       VectorStore
	chunkOpts   chunk.Options
	stats       handler.Stats
}

// New builds an IndexHandler over the given embedding provider and vector
// store collaborators.
func New(embed EmbeddingProvider, store VectorStore, chunkOpts chunk.Options) *IndexHandler {
	return &IndexHandler{embed: embed, store: store, chunkOpts: chunkOpts}
}

func (h *IndexHandler) OnStart(ctx context.Context) error {
	h.stats.StartTime = time.Now()
	return nil
}
func (h *IndexHandler) OnStop(ctx context.Context) error { return nil }
func (h *IndexHandler) Stats() handler.Stats              { return h.stats }

// Process is the indexer's terminal step: it never produces a downstream
// envelope, matching core/handler.Config's empty OutputQueue for this
// stage.
func (h *IndexHandler) Process(ctx context.Context, in *coredomain.Envelope) (*coredomain.Envelope, error) {
	h.stats.TasksProcessed++
	h.stats.LastActivity = time.Now()

	if in == nil || in.ContentHash == "" {
		return nil, coredomain.NewPermanentError(fmt.Errorf("indexer: envelope missing content_hash"))
	}

	if in.IndexOperation == coredomain.IndexOperationDelete {
		if err := h.store.Delete(ctx, in.ContentHash); err != nil {
			return nil, coredomain.NewTransientError(fmt.Errorf("indexer: delete: %w", err))
		}
		h.stats.TasksSucceeded++
		return nil, nil
	}

	chunks := chunk.Split(in.CleanContent, h.chunkOpts)
	if len(chunks) == 0 {
		h.stats.TasksSucceeded++
		return nil, coredomain.NewSkipError("no content to index")
	}

	for i, c := range chunks {
		vector, err := h.embed.Embed(ctx, c)
		if err != nil {
			return nil, coredomain.NewTransientError(fmt.Errorf("indexer: embed chunk %d: %w", i, err))
		}
		if err := h.store.Upsert(ctx, in.ContentHash, i, vector, c); err != nil {
			return nil, coredomain.NewTransientError(fmt.Errorf("indexer: upsert chunk %d: %w", i, err))
		}
	}

	h.stats.TasksSucceeded++
	return nil, nil
}
