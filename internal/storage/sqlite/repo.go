// Package sqlite implements a SQLite-backed artifact sink using database/sql.
// Each artifact becomes one table; rows are inserted with a prepared statement
// inside a single transaction. SQLite has no dedicated bulk-load API like
// Postgres COPY, but transactions keep performance acceptable for moderate
// volumes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // cgo-free SQLite driver

	"cohortnorm/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Writer, error) {
		return NewWriter(ctx, cfg.DSN)
	})
}

// Writer is a SQLite-backed implementation of storage.Writer.
type Writer struct{ db *sql.DB }

// NewWriter opens a SQLite connection using the provided DSN, for example:
//
//	"file:results.db?cache=shared"
//	"results.db"
func NewWriter(ctx context.Context, dsn string) (*Writer, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// Fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Writer{db: db}, nil
}

// WriteArtifact creates (or replaces) the artifact table and inserts every
// row inside one transaction. Either all rows commit or none do.
func (w *Writer) WriteArtifact(ctx context.Context, name string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: columns must not be empty")
	}

	if _, err := w.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
		return 0, fmt.Errorf("sqlite: drop %s: %w", name, err)
	}
	if _, err := w.db.ExecContext(ctx, createDDL(name, columns, rows)); err != nil {
		return 0, fmt.Errorf("sqlite: create %s: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)",
		name, quoteJoin(columns), placeholders,
	)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert into %s: %w", name, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit %s: %w", name, err)
	}
	return inserted, nil
}

// Close closes the shared connection.
func (w *Writer) Close() error { return w.db.Close() }

// createDDL renders CREATE TABLE for the artifact, inferring each column's
// affinity from the first non-nil value seen in it. Columns never observed
// non-nil default to TEXT.
func createDDL(name string, columns []string, rows [][]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %q (", name)
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q %s", col, sqliteType(firstValue(rows, i)))
	}
	b.WriteString(")")
	return b.String()
}

func sqliteType(v any) string {
	switch v.(type) {
	case float64:
		return "REAL"
	case bool:
		return "INTEGER"
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

func quoteJoin(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}
