// Package stub provides local, deterministic stand-ins for the indexer's
// embedding and vector-store collaborators, suitable for development and
// tests but not a production embedding/vector service.
package stub

import (
	"context"
	"fmt"
	"sync"

	"lukechampine.com/blake3"
)

// EmbeddingProvider derives a fixed-size vector deterministically from the
// chunk's bytes, so identical text always embeds identically without
// calling out to a real model.
type EmbeddingProvider struct {
	Dims int
}

// NewEmbeddingProvider builds a stub provider with the given vector width.
func NewEmbeddingProvider(dims int) *EmbeddingProvider {
	if dims <= 0 {
		dims = 32
	}
	return &EmbeddingProvider{Dims: dims}
}

func (p *EmbeddingProvider) Embed(ctx context.Context, chunk string) ([]float32, error) {
	sum := blake3.Sum256([]byte(chunk))
	vec := make([]float32, p.Dims)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)]) / 255
	}
	return vec, nil
}

// docEntry is one indexed chunk kept in the in-memory store.
type docEntry struct {
	ChunkIndex int
	Vector     []float32
	Text       string
}

// VectorStore is an in-memory map keyed by content hash, standing in for a
// real vector database.
type VectorStore struct {
	mu   sync.Mutex
	docs map[string][]docEntry
}

// NewVectorStore builds an empty in-memory store.
func NewVectorStore() *VectorStore {
	return &VectorStore{docs: make(map[string][]docEntry)}
}

func (s *VectorStore) Upsert(ctx context.Context, contentHash string, chunkIndex int, vector []float32, text string) error {
	if contentHash == "" {
		return fmt.Errorf("stub vector store: empty content hash")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.docs[contentHash]
	for i, e := range entries {
		if e.ChunkIndex == chunkIndex {
			entries[i] = docEntry{ChunkIndex: chunkIndex, Vector: vector, Text: text}
			s.docs[contentHash] = entries
			return nil
		}
	}
	s.docs[contentHash] = append(entries, docEntry{ChunkIndex: chunkIndex, Vector: vector, Text: text})
	return nil
}

func (s *VectorStore) Delete(ctx context.Context, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, contentHash)
	return nil
}

// Len reports how many chunks are currently indexed under contentHash,
// used by tests to assert on upsert/delete effects.
func (s *VectorStore) Len(contentHash string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[contentHash])
}
