package handler

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	coredomain "github.com/sitesearch/pipeline/core/domain"
)

// These pairing tests pin the envelope contract across the clean/persist
// stage boundary: an unchanged hash must eventually produce a skip at the
// persister, and a changed hash must produce a forwarded edit. The cleaner
// stage's handler package is not importable here — it sits under its own
// module's internal/ tree, which Go only opens to code rooted at that same
// module — so each case builds the envelope exactly as clean_handler.go
// would hand it off (same fields, same values a cache-hit or cache-miss
// clean would produce) and runs it through the real persister Process.

func TestPairingReseedWithUnchangedHashSkipsAfterInitialInsert(t *testing.T) {
	h, mock := newTestHandler(t)
	url := "https://example.com/pairing-unchanged"

	mock.ExpectQuery("SELECT url, content_hash, version, index_operation, created_at FROM documents").
		WithArgs(url).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(url, "h1", 1, "new", "first clean text", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	firstClean := &coredomain.Envelope{URL: url, SiteID: "demo", ContentHash: "h1", CleanContent: "first clean text"}
	out, err := h.Process(context.Background(), firstClean)
	require.NoError(t, err)
	require.Equal(t, coredomain.IndexOperationNew, out.IndexOperation)

	// The cleaner re-fetches the same bytes, recomputes the same hash, and
	// serves clean_content from its own cache — but still hands the
	// persister the same (url, content_hash) pair it would on a cache miss.
	rows := pgxmock.NewRows([]string{"url", "content_hash", "version", "index_operation", "created_at"}).
		AddRow(url, "h1", 1, coredomain.IndexOperationNew, time.Now())
	mock.ExpectQuery("SELECT url, content_hash, version, index_operation, created_at FROM documents").
		WithArgs(url).
		WillReturnRows(rows)

	reseedClean := &coredomain.Envelope{URL: url, SiteID: "demo", ContentHash: "h1", CleanContent: "first clean text"}
	out, err = h.Process(context.Background(), reseedClean)
	require.Nil(t, out)
	var skip *coredomain.SkipError
	require.ErrorAs(t, err, &skip)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPairingReseedWithChangedHashForwardsEdit(t *testing.T) {
	h, mock := newTestHandler(t)
	url := "https://example.com/pairing-changed"

	mock.ExpectQuery("SELECT url, content_hash, version, index_operation, created_at FROM documents").
		WithArgs(url).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(url, "h1", 1, "new", "first clean text", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	firstClean := &coredomain.Envelope{URL: url, SiteID: "demo", ContentHash: "h1", CleanContent: "first clean text"}
	_, err := h.Process(context.Background(), firstClean)
	require.NoError(t, err)

	// The page changed: the cleaner's skip-path lookup misses (stored hash
	// is h1, new hash is h2), so it runs the strategy fresh and hands the
	// persister a mutated envelope.
	rows := pgxmock.NewRows([]string{"url", "content_hash", "version", "index_operation", "created_at"}).
		AddRow(url, "h1", 1, coredomain.IndexOperationNew, time.Now())
	mock.ExpectQuery("SELECT url, content_hash, version, index_operation, created_at FROM documents").
		WithArgs(url).
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(url, "h2", 2, "edit", "second clean text", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mutatedClean := &coredomain.Envelope{URL: url, SiteID: "demo", ContentHash: "h2", CleanContent: "second clean text"}
	out, err := h.Process(context.Background(), mutatedClean)
	require.NoError(t, err)
	require.Equal(t, coredomain.IndexOperationEdit, out.IndexOperation)
	require.Equal(t, 2, out.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}
