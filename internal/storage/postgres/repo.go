// Package postgres implements a Postgres-backed artifact sink using pgx v5.
// Each artifact becomes one table, populated with a single COPY so the write
// is all-or-nothing from the sink's point of view.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cohortnorm/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Writer, error) {
		return NewWriter(ctx, cfg.DSN)
	})
}

// Writer is a Postgres-backed implementation of storage.Writer.
type Writer struct{ pool *pgxpool.Pool }

// NewWriter opens a pgx connection pool for the given DSN.
func NewWriter(ctx context.Context, dsn string) (*Writer, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgxpool: %w", err)
	}
	return &Writer{pool: pool}, nil
}

// WriteArtifact recreates the artifact table and loads every row with COPY
// inside one transaction.
func (w *Writer) WriteArtifact(ctx context.Context, name string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: columns must not be empty")
	}

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: acquire: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ident := pgx.Identifier{name}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident.Sanitize()); err != nil {
		return 0, fmt.Errorf("postgres: drop %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, createDDL(name, columns, rows)); err != nil {
		return 0, fmt.Errorf("postgres: create %s: %w", name, err)
	}

	n, err := tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit %s: %w", name, err)
	}
	return n, nil
}

// Close releases the pool.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}

// createDDL renders CREATE TABLE for the artifact, inferring each column's
// type from the first non-nil value seen in it. Columns never observed
// non-nil default to TEXT.
func createDDL(name string, columns []string, rows [][]any) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(pgx.Identifier{name}.Sanitize())
	b.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{col}.Sanitize())
		b.WriteByte(' ')
		b.WriteString(pgType(firstValue(rows, i)))
	}
	b.WriteString(")")
	return b.String()
}

func pgType(v any) string {
	switch v.(type) {
	case float64:
		return "DOUBLE PRECISION"
	case bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func firstValue(rows [][]any, col int) any {
	for _, row := range rows {
		if col < len(row) && row[col] != nil {
			return row[col]
		}
	}
	return nil
}
