// Package sink buffers transformed batches and flushes them to durable
// storage as cohort artifacts.
//
// Buffered rows accumulate until they exceed the configured threshold, at
// which point they are written out as one intermediate artifact named
// <cohort>_part_<marker> and the buffer is cleared. Finalize writes whatever
// remains as <cohort>_processed. Every row added to the sink appears in
// exactly one artifact; a failed write is fatal for the cohort, so no
// artifact is ever silently dropped or duplicated.
package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"cohortnorm/internal/storage"
	"cohortnorm/internal/table"
)

// Sink accumulates rows for one cohort. It is owned by a single goroutine;
// cohorts never share a Sink.
type Sink struct {
	cohort    string
	columns   []string
	writer    storage.Writer
	flushRows int

	buffered [][]any

	// nowFn stamps intermediate artifact names; injectable for tests.
	nowFn func() time.Time

	rowsOut   int64
	artifacts []string
}

// New returns a Sink for the cohort whose artifacts carry the given columns.
// flushRows is the buffered-row threshold that triggers an intermediate flush.
func New(cohort string, columns []string, w storage.Writer, flushRows int) *Sink {
	return &Sink{
		cohort:    cohort,
		columns:   columns,
		writer:    w,
		flushRows: flushRows,
		nowFn:     time.Now,
	}
}

// Add buffers the rows of one transformed batch, flushing an intermediate
// artifact once the buffer exceeds the threshold. A flush error is returned
// as-is and the cohort must not continue.
func (s *Sink) Add(ctx context.Context, b *table.Batch) error {
	s.buffered = append(s.buffered, b.Rows...)
	if len(s.buffered) <= s.flushRows {
		return nil
	}
	name := fmt.Sprintf("%s_part_%d", s.cohort, s.nowFn().UnixNano())
	return s.flush(ctx, name)
}

// Finalize writes the remaining buffered rows as the cohort's primary
// artifact and returns the totals across all flushes. It must be called
// exactly once, after the last Add.
//
// When intermediate parts were flushed and nothing remains buffered, no
// primary artifact is written. When nothing was written at all, an empty
// (header-only) primary artifact is still produced so downstream consumers
// see a schema-stable output for the cohort.
func (s *Sink) Finalize(ctx context.Context) (Summary, error) {
	if len(s.buffered) > 0 || len(s.artifacts) == 0 {
		if err := s.flush(ctx, s.cohort+"_processed"); err != nil {
			return Summary{}, err
		}
	}
	return Summary{Artifacts: s.artifacts, Rows: s.rowsOut}, nil
}

// Summary reports what a cohort's sink persisted.
type Summary struct {
	// Artifacts lists the artifact names written, in flush order.
	Artifacts []string

	// Rows is the total row count across all artifacts.
	Rows int64
}

func (s *Sink) flush(ctx context.Context, name string) error {
	n, err := s.writer.WriteArtifact(ctx, name, s.columns, s.buffered)
	if err != nil {
		return fmt.Errorf("sink: flush %s: %w", name, err)
	}
	log.Printf("sink: cohort=%s artifact=%s rows=%d buffered=%d", s.cohort, name, n, len(s.buffered))

	s.rowsOut += n
	s.artifacts = append(s.artifacts, name)
	s.buffered = s.buffered[:0:0]
	return nil
}
