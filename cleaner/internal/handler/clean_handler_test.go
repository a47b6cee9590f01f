package handler

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	coredomain "github.com/sitesearch/pipeline/core/domain"
)

// newTestRDB connects to a live Redis instance, like the rest of the pack's
// Redis-backed tests: there is no in-memory Redis double in the pack to
// depend on instead.
func newTestRDB(t *testing.T) *redis.Client {
	addr := os.Getenv("PIPELINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PIPELINE_TEST_REDIS_ADDR not set; skipping Redis-backed cleaner test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rdb.Ping(ctx).Err())

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestProcessCleansAndCachesOnFirstRun(t *testing.T) {
	rdb := newTestRDB(t)
	ctx := context.Background()
	url := "https://example.com/first-run"
	t.Cleanup(func() {
		_ = rdb.Del(ctx, coredomain.ContentHashKey(url), coredomain.CleanContentKey(url)).Err()
	})

	h := New(rdb)
	in := &coredomain.Envelope{
		URL:         url,
		MimeType:    "text/html",
		Content:     []byte("<html><body><p>hello</p></body></html>"),
		ContentHash: "abc123",
	}

	out, err := h.Process(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, out.CleanContent)

	cached, err := rdb.Get(ctx, coredomain.CleanContentKey(url)).Result()
	require.NoError(t, err)
	require.Equal(t, out.CleanContent, cached)
}

func TestProcessForwardsCachedContentOnHashMatch(t *testing.T) {
	rdb := newTestRDB(t)
	ctx := context.Background()
	url := "https://example.com/hash-match"
	t.Cleanup(func() {
		_ = rdb.Del(ctx, coredomain.ContentHashKey(url), coredomain.CleanContentKey(url)).Err()
	})

	require.NoError(t, rdb.Set(ctx, coredomain.ContentHashKey(url), "abc123", 0).Err())
	require.NoError(t, rdb.Set(ctx, coredomain.CleanContentKey(url), "cached clean text", 0).Err())

	h := New(rdb)
	in := &coredomain.Envelope{
		URL:         url,
		MimeType:    "text/html",
		Content:     []byte("<html><body><p>should not be reconverted</p></body></html>"),
		ContentHash: "abc123",
	}

	out, err := h.Process(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "cached clean text", out.CleanContent)
}

func TestProcessRejectsNilEnvelope(t *testing.T) {
	rdb := newTestRDB(t)
	h := New(rdb)

	_, err := h.Process(context.Background(), nil)
	require.Error(t, err)
	var permErr *coredomain.PermanentError
	require.True(t, errors.As(err, &permErr))
}
