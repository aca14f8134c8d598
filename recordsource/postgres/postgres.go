// Package postgres implements recordsource.Source over a SQL query against
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/vecpipe/vecpipe/model"
	"github.com/vecpipe/vecpipe/recordsource"
)

// Open opens a PostgreSQL connection pool for the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Source runs one SQL query per embedding run and yields each row as a
// record keyed by column name.
type Source struct {
	db    *sql.DB
	query string
	args  []any
}

// New creates a Source for the given query.
func New(db *sql.DB, query string, args ...any) *Source {
	return &Source{
		db:    db,
		query: query,
		args:  args,
	}
}

// Query starts a new iteration by executing the configured query.
func (s *Source) Query(ctx context.Context) (recordsource.Iterator, error) {
	rows, err := s.db.QueryContext(ctx, s.query, s.args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read columns: %w", err)
	}

	return &rowsIterator{rows: rows, cols: cols}, nil
}

type rowsIterator struct {
	rows *sql.Rows
	cols []string
}

func (it *rowsIterator) Next(ctx context.Context) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	vals := make([]any, len(it.cols))
	ptrs := make([]any, len(it.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	if err := it.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	rec := make(model.Record, len(it.cols))
	for i, col := range it.cols {
		rec[col] = normalize(vals[i])
	}

	return rec, nil
}

func (it *rowsIterator) Close() error {
	return it.rows.Close()
}

// normalize converts driver types to the record value forms the projector
// understands. Byte slices carry text columns and become strings; NULL stays
// nil; int64, float64, bool, and time.Time pass through.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
