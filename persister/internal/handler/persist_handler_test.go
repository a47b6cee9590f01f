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

func newTestHandler(t *testing.T) (*PersistHandler, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return New(mock, nil), mock
}

func TestProcessInsertsNewDocumentForUnknownURL(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery("SELECT url, content_hash, version, index_operation, created_at FROM documents").
		WithArgs("https://example.com/a").
		WillReturnError(pgx.ErrNoRows)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs("https://example.com/a", "hash-1", 1, "new", "clean text", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	out, err := h.Process(context.Background(), &coredomain.Envelope{
		URL:          "https://example.com/a",
		ContentHash:  "hash-1",
		CleanContent: "clean text",
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Version)
	require.Equal(t, coredomain.IndexOperationNew, out.IndexOperation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessSkipsWhenHashUnchanged(t *testing.T) {
	h, mock := newTestHandler(t)

	rows := pgxmock.NewRows([]string{"url", "content_hash", "version", "index_operation", "created_at"}).
		AddRow("https://example.com/a", "hash-1", 1, coredomain.IndexOperationNew, time.Now())

	mock.ExpectQuery("SELECT url, content_hash, version, index_operation, created_at FROM documents").
		WithArgs("https://example.com/a").
		WillReturnRows(rows)

	out, err := h.Process(context.Background(), &coredomain.Envelope{
		URL:          "https://example.com/a",
		ContentHash:  "hash-1",
		CleanContent: "clean text",
	})
	require.Nil(t, out)
	var skip *coredomain.SkipError
	require.ErrorAs(t, err, &skip)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessInsertsEditOnDifferentHash(t *testing.T) {
	h, mock := newTestHandler(t)

	rows := pgxmock.NewRows([]string{"url", "content_hash", "version", "index_operation", "created_at"}).
		AddRow("https://example.com/a", "hash-1", 1, coredomain.IndexOperationNew, time.Now())

	mock.ExpectQuery("SELECT url, content_hash, version, index_operation, created_at FROM documents").
		WithArgs("https://example.com/a").
		WillReturnRows(rows)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs("https://example.com/a", "hash-2", 2, "edit", "new text", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	out, err := h.Process(context.Background(), &coredomain.Envelope{
		URL:          "https://example.com/a",
		ContentHash:  "hash-2",
		CleanContent: "new text",
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Version)
	require.Equal(t, coredomain.IndexOperationEdit, out.IndexOperation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessForwardsDeleteSignalWithoutTouchingStore(t *testing.T) {
	h, mock := newTestHandler(t)

	out, err := h.Process(context.Background(), &coredomain.Envelope{
		URL:            "https://example.com/a",
		IndexOperation: coredomain.IndexOperationDelete,
		CleanContent:   "stale",
	})
	require.NoError(t, err)
	require.Equal(t, "", out.CleanContent)
	require.Equal(t, coredomain.IndexOperationDelete, out.IndexOperation)
	require.NoError(t, mock.ExpectationsWereMet())
}
