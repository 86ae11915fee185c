// Package file implements filesystem-backed data sources: one Local source
// per delimited file, plus cohort directory discovery and URL list reading.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local reads one resource from a path on the local filesystem.
type Local struct{ path string }

// NewLocal returns a source bound to path. The path is not checked here; a
// missing or unreadable file surfaces from Open.
func NewLocal(path string) *Local { return &Local{path: path} }

// Name returns the base name of the file, which is how the resource appears
// in logs and skip counts.
func (l *Local) Name() string { return filepath.Base(l.path) }

// Path returns the full filesystem path of the source.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading. A context already canceled at call time
// returns its error without touching the filesystem. Filesystem errors are
// wrapped with the path and keep their chain intact for errors.Is checks
// such as os.ErrNotExist.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
