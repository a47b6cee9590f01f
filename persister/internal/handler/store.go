// documentStore wraps the document table's reads/writes, built on
// jackc/pgx/v5's pool and Masterminds/squirrel's query builder the way
// vesla0x1's shared/infrastructure/repository/{base,download}.go wraps a
// driver handle in a table-scoped repository with a shared
// squirrel.StatementBuilderType.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	coredomain "github.com/sitesearch/pipeline/core/domain"
)

const documentsTable = "documents"

// pgxIface is the narrow subset of *pgxpool.Pool the store needs, so tests
// can substitute pgxmock's pool double without pulling in a real database.
type pgxIface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// documentRow is the latest persisted version of a URL's content.
type documentRow struct {
	URL            string
	ContentHash    string
	Version        int
	IndexOperation coredomain.IndexOperation
	CreatedAt      time.Time
}

type documentStore struct {
	pool pgxIface
	qb   squirrel.StatementBuilderType
}

func newDocumentStore(pool pgxIface) *documentStore {
	return &documentStore{
		pool: pool,
		qb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// latest returns the most recent row for url, or (nil, nil) if the url has
// never been persisted.
func (s *documentStore) latest(ctx context.Context, url string) (*documentRow, error) {
	query := s.qb.
		Select("url", "content_hash", "version", "index_operation", "created_at").
		From(documentsTable).
		Where(squirrel.Eq{"url": url}).
		OrderBy("version DESC").
		Limit(1)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest query: %w", err)
	}

	var row documentRow
	err = s.pool.QueryRow(ctx, sql, args...).Scan(
		&row.URL, &row.ContentHash, &row.Version, &row.IndexOperation, &row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	return &row, nil
}

// insert appends a new version row; the table never UPDATEs a prior
// version, matching the envelope's append-only ethos.
func (s *documentStore) insert(ctx context.Context, row documentRow, cleanContent string) error {
	query := s.qb.
		Insert(documentsTable).
		Columns("url", "content_hash", "version", "index_operation", "clean_content", "created_at").
		Values(row.URL, row.ContentHash, row.Version, string(row.IndexOperation), cleanContent, row.CreatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}
