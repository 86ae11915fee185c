// Package reader implements batched reading of delimited tabular resources.
//
// A BatchReader opens one resource through a datasource.Source and yields
// bounded table.Batch values until EOF. Reading is tolerant, as real-world
// public datasets demand: variable field counts are accepted,
// malformed rows are soft-dropped and counted, empty cells become nil.
// Only a resource that cannot be opened, decoded, or headed at all is an
// error, and that error carries the ErrUnreadable sentinel so callers can
// skip the resource without aborting its siblings.
package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"cohortnorm/internal/config"
	"cohortnorm/internal/datasource"
	"cohortnorm/internal/table"
)

// ErrUnreadable marks a resource that could not be opened, whose header
// could not be read, or whose underlying source failed mid-stream. Callers
// match it with errors.Is and skip the resource.
var ErrUnreadable = errors.New("resource unreadable")

// Options configures a BatchReader. Zero values select the defaults noted on
// each field.
type Options struct {
	// Comma is the field delimiter; ',' when zero.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each cell. Default true
	// when built via FromConfig.
	TrimSpace bool

	// LazyQuotes tolerates unescaped quotes inside fields.
	LazyQuotes bool

	// Encoding selects the byte decoding applied before CSV parsing:
	// "" / "utf8", "latin1" / "iso-8859-1", or "windows-1252".
	Encoding string

	// BatchRows caps rows per returned batch; 10000 when zero.
	BatchRows int

	// Cols restricts reading to the named columns, in the given order.
	// Columns absent from the resource yield nil cells. Empty means all
	// columns in file order.
	Cols []string
}

// FromConfig builds reader Options from the job's reader options bag.
func FromConfig(o config.Options) Options {
	return Options{
		Comma:      o.Rune("comma", ','),
		TrimSpace:  o.Bool("trim_space", true),
		LazyQuotes: o.Bool("lazy_quotes", true),
		Encoding:   o.String("encoding", "utf8"),
	}
}

// BatchReader reads one resource in bounded batches. It is not safe for
// concurrent use; a fresh reader (via Open) restarts from the first row.
type BatchReader struct {
	src     io.ReadCloser
	name    string
	cr      *csv.Reader
	columns []string // batch columns, either opt.Cols or the file header
	colIx   []int    // colIx[target] = source index, or -1 for missing
	opt     Options

	// Dropped counts malformed rows soft-dropped so far.
	Dropped int

	line int
	done bool
}

// Open opens src and reads its header. The returned reader yields batches of
// at most opt.BatchRows rows aligned to opt.Cols (or to the header when Cols
// is empty). Open failures and header failures wrap ErrUnreadable.
func Open(ctx context.Context, src datasource.Source, opt Options) (*BatchReader, error) {
	if opt.Comma == 0 {
		opt.Comma = ','
	}
	if opt.BatchRows <= 0 {
		opt.BatchRows = 10_000
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("reader %s: %w: %w", src.Name(), ErrUnreadable, err)
	}

	dec, err := decodeWrap(rc, opt.Encoding)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("reader %s: %w: %w", src.Name(), ErrUnreadable, err)
	}

	cr := csv.NewReader(dec)
	cr.Comma = opt.Comma
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // tolerant by default
	cr.TrimLeadingSpace = opt.TrimSpace

	br := &BatchReader{src: rc, name: src.Name(), cr: cr, opt: opt}
	if err := br.readHeader(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("reader %s: %w: %w", src.Name(), ErrUnreadable, err)
	}
	return br, nil
}

// Columns returns the column names of every batch this reader yields.
func (b *BatchReader) Columns() []string { return b.columns }

// Name returns the resource name.
func (b *BatchReader) Name() string { return b.name }

// Close releases the underlying source.
func (b *BatchReader) Close() error { return b.src.Close() }

// Next returns the next batch, with 1 to opt.BatchRows rows. It returns
// (nil, io.EOF) once the resource is exhausted. Malformed rows inside a batch
// are dropped and counted in Dropped; they never fail the batch. A read
// failure of the underlying source is different: it is persistent, so Next
// returns an error wrapping ErrUnreadable and every later call returns
// io.EOF.
func (b *BatchReader) Next(ctx context.Context) (*table.Batch, error) {
	if b.done {
		return nil, io.EOF
	}

	batch := table.New(b.columns, b.opt.BatchRows)
	for len(batch.Rows) < b.opt.BatchRows {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := b.cr.Read()
		if err == io.EOF {
			b.done = true
			break
		}
		b.line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				b.Dropped++
				continue
			}
			// Not a row-level parse failure: the source itself broke, and
			// retrying the read would return the same error forever.
			b.done = true
			return nil, fmt.Errorf("reader %s: %w: %w", b.name, ErrUnreadable, err)
		}

		row := make([]any, len(b.columns))
		for t := range b.columns {
			si := b.colIx[t]
			if si < 0 || si >= len(rec) {
				continue // nil: column missing in this resource/row
			}
			v := rec[si]
			if b.opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row[t] = v
			}
		}
		batch.Rows = append(batch.Rows, row)
	}

	if len(batch.Rows) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// readHeader consumes the header line and builds the target→source column
// index. Header cells are trimmed and the leading UTF-8 BOM is stripped.
func (b *BatchReader) readHeader() error {
	hdr, err := b.cr.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	b.line++

	header := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		header[i] = h
	}

	if len(b.opt.Cols) == 0 {
		b.columns = header
		b.colIx = make([]int, len(header))
		for i := range b.colIx {
			b.colIx[i] = i
		}
		return nil
	}

	srcToIdx := make(map[string]int, len(header))
	for i, h := range header {
		srcToIdx[h] = i
	}
	b.columns = b.opt.Cols
	b.colIx = make([]int, len(b.columns))
	for t, target := range b.columns {
		if si, ok := srcToIdx[target]; ok {
			b.colIx[t] = si
		} else {
			b.colIx[t] = -1
		}
	}
	return nil
}

// decodeWrap wraps r with the decoder for the configured source encoding.
func decodeWrap(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
		return r, nil
	case "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
