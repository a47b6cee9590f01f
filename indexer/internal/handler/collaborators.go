package handler

import "context"

// EmbeddingProvider turns a chunk of clean_content into a vector. The
// production collaborator behind this interface is an external embedding
// service; no such client is wired into this repository (see DESIGN.md).
type EmbeddingProvider interface {
	Embed(ctx context.Context, chunk string) ([]float32, error)
}

// VectorStore upserts or removes a document's chunks, keyed by
// content_hash. The production collaborator is an external vector
// database; no such client is wired into this repository (see DESIGN.md).
type VectorStore interface {
	Upsert(ctx context.Context, contentHash string, chunkIndex int, vector []float32, text string) error
	Delete(ctx context.Context, contentHash string) error
}
