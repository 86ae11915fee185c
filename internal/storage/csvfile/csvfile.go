// Package csvfile implements the default artifact sink: one CSV file per
// artifact under a results directory.
//
// Every artifact is written through an xxh3 hasher so the log carries a
// content checksum; downstream consumers can verify a transfer against it
// without re-reading the file here.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zeebo/xxh3"

	"cohortnorm/internal/storage"
)

func init() {
	storage.Register("csv", func(_ context.Context, cfg storage.Config) (storage.Writer, error) {
		return NewWriter(cfg.Dir)
	})
}

// Writer writes artifacts as CSV files under dir.
type Writer struct{ dir string }

// NewWriter ensures dir exists and returns a Writer rooted there.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("csvfile: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvfile: mkdir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// WriteArtifact writes <dir>/<name>.csv with a header row. The file is
// created fresh; an existing artifact of the same name is truncated, which
// keeps re-runs idempotent.
func (w *Writer) WriteArtifact(ctx context.Context, name string, columns []string, rows [][]any) (int64, error) {
	path := filepath.Join(w.dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("csvfile: create %s: %w", path, err)
	}

	h := xxh3.New()
	cw := csv.NewWriter(&hashedWriter{f: f, h: h})

	if err := cw.Write(columns); err != nil {
		f.Close()
		return 0, fmt.Errorf("csvfile: write header: %w", err)
	}

	rec := make([]string, len(columns))
	var n int64
	for _, row := range rows {
		select {
		case <-ctx.Done():
			f.Close()
			return n, ctx.Err()
		default:
		}
		if len(row) != len(columns) {
			f.Close()
			return n, fmt.Errorf("csvfile: row length %d != columns length %d", len(row), len(columns))
		}
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			f.Close()
			return n, fmt.Errorf("csvfile: write row: %w", err)
		}
		n++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return n, fmt.Errorf("csvfile: flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("csvfile: close %s: %w", path, err)
	}

	log.Printf("csvfile: wrote artifact=%s rows=%d cols=%d xxh3=%016x", path, n, len(columns), h.Sum64())
	return n, nil
}

// Close is a no-op; the writer holds no open resources between artifacts.
func (w *Writer) Close() error { return nil }

// hashedWriter tees bytes into the artifact file and the running checksum.
type hashedWriter struct {
	f *os.File
	h *xxh3.Hasher
}

func (hw *hashedWriter) Write(p []byte) (int, error) {
	hw.h.Write(p) // never fails
	return hw.f.Write(p)
}

// formatCell renders one cell for CSV output. Missing cells render empty,
// floats use the shortest round-trip form.
func formatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}
