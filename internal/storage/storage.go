// Package storage contains the storage-agnostic contract for persisting
// output artifacts, plus a small factory keyed by backend kind.
//
// Concrete backends (CSV files, SQLite, Postgres) live in subpackages and
// register themselves via Register from an init function; the blank-import
// package storage/all pulls in every built-in backend. Everything above this
// layer depends only on the Writer interface and never imports a database
// driver directly.
package storage

import (
	"context"
	"fmt"
	"sort"
)

// Config selects and configures a backend.
type Config struct {
	// Kind names the backend: "csv", "sqlite", "postgres".
	Kind string

	// Dir is the results directory for file-based backends.
	Dir string

	// DSN is the connection string for database-backed backends.
	DSN string
}

// Writer persists whole artifacts. One artifact is one named table written in
// a single call; implementations must either write every row or fail the
// artifact, never a partial success, so that the sink's exactly-once
// guarantee holds.
type Writer interface {
	// WriteArtifact persists rows (aligned to columns) under the artifact
	// name and returns the number of rows written.
	WriteArtifact(ctx context.Context, name string, columns []string, rows [][]any) (int64, error)

	// Close releases the backend's resources.
	Close() error
}

// Factory builds a Writer for a Config.
type Factory func(ctx context.Context, cfg Config) (Writer, error)

var factories = map[string]Factory{}

// Register installs a backend factory under kind. It is intended to be called
// from backend init functions; registering the same kind twice panics, since
// that is always a wiring bug.
func Register(kind string, f Factory) {
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("storage: duplicate backend %q", kind))
	}
	factories[kind] = f
}

// New opens the backend selected by cfg.Kind.
func New(ctx context.Context, cfg Config) (Writer, error) {
	f, ok := factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
