package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitesearch/pipeline/core/chunk"
	coredomain "github.com/sitesearch/pipeline/core/domain"
	"github.com/sitesearch/pipeline/indexer/internal/stub"
)

func TestProcessUpsertsAllChunks(t *testing.T) {
	store := stub.NewVectorStore()
	h := New(stub.NewEmbeddingProvider(8), store, chunk.Options{Size: 10, Overlap: 2})

	out, err := h.Process(context.Background(), &coredomain.Envelope{
		ContentHash:    "hash-1",
		CleanContent:   "word word word word word word word word word word word word",
		IndexOperation: coredomain.IndexOperationNew,
	})
	require.NoError(t, err)
	require.Nil(t, out)
	require.Greater(t, store.Len("hash-1"), 0)
}

func TestProcessDeleteRemovesFromStore(t *testing.T) {
	store := stub.NewVectorStore()
	h := New(stub.NewEmbeddingProvider(8), store, chunk.Options{})

	_, err := h.Process(context.Background(), &coredomain.Envelope{
		ContentHash:    "hash-1",
		CleanContent:   "some content",
		IndexOperation: coredomain.IndexOperationNew,
	})
	require.NoError(t, err)
	require.Greater(t, store.Len("hash-1"), 0)

	_, err = h.Process(context.Background(), &coredomain.Envelope{
		ContentHash:    "hash-1",
		IndexOperation: coredomain.IndexOperationDelete,
	})
	require.NoError(t, err)
	require.Equal(t, 0, store.Len("hash-1"))
}

func TestProcessRejectsMissingContentHash(t *testing.T) {
	h := New(stub.NewEmbeddingProvider(8), stub.NewVectorStore(), chunk.Options{})

	_, err := h.Process(context.Background(), &coredomain.Envelope{CleanContent: "x"})
	var permanent *coredomain.PermanentError
	require.ErrorAs(t, err, &permanent)
}
