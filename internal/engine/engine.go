// Package engine orchestrates the per-cohort normalization run.
//
// One cohort moves through a fixed sequence of stages: discover the numeric
// schema, estimate robust statistics, transform every resource batch by
// batch, and flush through the sink. Stages never run out of order and a
// cohort never revisits an earlier stage; a cohort without numeric content
// finalizes directly after discovery.
//
// Cohorts share no state, so the engine runs them concurrently up to the
// configured worker limit. Failures follow the isolation policy of the rest
// of the pipeline: unreadable resources and failed batches are logged and
// skipped, and only a failure to persist an output artifact is escalated,
// for that cohort alone, never its siblings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cohortnorm/internal/config"
	"cohortnorm/internal/datasource"
	"cohortnorm/internal/datasource/file"
	"cohortnorm/internal/datasource/httpds"
	"cohortnorm/internal/discover"
	"cohortnorm/internal/metrics"
	"cohortnorm/internal/reader"
	"cohortnorm/internal/sink"
	"cohortnorm/internal/stats"
	"cohortnorm/internal/storage"
	"cohortnorm/internal/transform"
)

// Engine runs normalization jobs against a storage writer.
type Engine struct {
	job    config.Job
	writer storage.Writer
	fetch  *httpds.Client
}

// New builds an Engine for the job. The writer is shared across cohorts;
// every built-in backend is safe for concurrent WriteArtifact calls.
func New(job config.Job, w storage.Writer) *Engine {
	return &Engine{
		job:    job,
		writer: w,
		fetch:  httpds.NewClient(httpds.Config{}),
	}
}

// Result summarizes one cohort run.
type Result struct {
	Cohort  string
	Skipped bool // no resources or no numeric columns

	NumericCols      []string
	RowsTransformed  int64
	RowsFlushed      int64
	Artifacts        []string
	ResourcesSkipped int
	BatchesSkipped   int
}

// Run processes every cohort of the job, at most job.Workers concurrently.
// Per-cohort failures are collected and joined into the returned error after
// all cohorts finish; one cohort's failure never cancels another's run.
func (e *Engine) Run(ctx context.Context) error {
	workers := e.job.Workers
	if workers <= 0 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu   sync.Mutex
		errs []error
	)

	for _, c := range e.job.Cohorts {
		g.Go(func() error {
			res, err := e.RunCohort(ctx, c)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("cohort %s: %w", c.Name, err))
				mu.Unlock()
				return nil // isolate: sibling cohorts keep running
			}
			logSummary(res)
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

// RunCohort executes the full stage sequence for one cohort. The returned
// error is non-nil only for escalated failures (artifact writes and context
// cancellation); everything else is logged, counted, and skipped.
func (e *Engine) RunCohort(ctx context.Context, c config.Cohort) (Result, error) {
	res := Result{Cohort: c.Name}
	dir := c.Dir
	if dir == "" {
		dir = filepath.Join(e.job.DataDir, c.Name)
	}

	if err := e.collect(ctx, c, dir); err != nil {
		return res, err
	}

	locals, err := file.DiscoverDir(dir)
	if err != nil {
		return res, fmt.Errorf("list resources: %w", err)
	}
	if len(locals) == 0 {
		log.Printf("engine: no resources found for cohort %s in %s", c.Name, dir)
		res.Skipped = true
		return res, nil
	}
	sources := make([]datasource.Source, len(locals))
	for i, l := range locals {
		sources[i] = l
	}
	log.Printf("engine: processing cohort %s with %d resources", c.Name, len(sources))

	ropt := reader.FromConfig(e.job.Reader)
	n := e.job.Normalize

	// DISCOVER
	start := time.Now()
	schema, err := discover.Discover(ctx, sources, ropt, n.SampleRows, n.IDColumns)
	metrics.RecordStep(c.Name, "discover", err, time.Since(start))
	if err != nil {
		return res, err
	}
	if schema.Empty() {
		log.Printf("engine: no numeric columns found for cohort %s, skipping normalization", c.Name)
		res.Skipped = true
		return res, nil
	}
	res.NumericCols = schema.Numeric
	log.Printf("engine: cohort=%s numeric_cols=%v id_cols=%v sampled=%d",
		c.Name, schema.Numeric, schema.ID, schema.Sampled)

	// ESTIMATE
	start = time.Now()
	st, err := stats.Estimate(ctx, sources, schema.Numeric, ropt, stats.Options{
		BatchRows: n.StatsBatchRows,
		SampleCap: n.StatsSampleCap,
		Subsample: n.StatsSubsample,
	})
	metrics.RecordStep(c.Name, "estimate", err, time.Since(start))
	if err != nil {
		return res, err
	}
	for _, col := range schema.Numeric {
		log.Printf("engine: cohort=%s col=%s center=%g spread=%g", c.Name, col, st[col].Center, st[col].Spread)
	}

	// TRANSFORM + FLUSH
	tr := transform.New(schema, st, n.SigZ)
	sk := sink.New(c.Name, tr.OutputColumns(), e.writer, n.FlushRows)

	start = time.Now()
	err = e.transformAll(ctx, sources, ropt, tr, sk, &res)
	metrics.RecordStep(c.Name, "transform", err, time.Since(start))
	if err != nil {
		return res, err
	}

	// FINALIZE
	start = time.Now()
	sum, err := sk.Finalize(ctx)
	metrics.RecordStep(c.Name, "finalize", err, time.Since(start))
	if err != nil {
		return res, err
	}
	res.RowsFlushed = sum.Rows
	res.Artifacts = sum.Artifacts
	metrics.RecordRows(c.Name, "flushed", sum.Rows)
	metrics.RecordArtifacts(c.Name, int64(len(sum.Artifacts)))
	return res, nil
}

// transformAll re-reads every resource in bounded batches, applies the
// transformer, and feeds the sink. Resources that cannot be opened or fail
// mid-read are skipped, as are failed batches; a sink error aborts the
// cohort immediately.
func (e *Engine) transformAll(
	ctx context.Context,
	sources []datasource.Source,
	ropt reader.Options,
	tr *transform.Transformer,
	sk *sink.Sink,
	res *Result,
) error {
	ropt.BatchRows = e.job.Normalize.BatchRows
	ropt.Cols = tr.InputColumns()

	for _, src := range sources {
		br, err := reader.Open(ctx, src, ropt)
		if err != nil {
			log.Printf("engine: cohort=%s skipping resource %s: %v", res.Cohort, src.Name(), err)
			res.ResourcesSkipped++
			metrics.RecordRows(res.Cohort, "resource_errors", 1)
			continue
		}

		var readErr error
		for {
			batch, err := br.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					br.Close()
					return err
				}
				readErr = err
				break
			}

			out, err := tr.Apply(batch)
			if err != nil {
				log.Printf("engine: cohort=%s resource=%s batch failed, skipping: %v", res.Cohort, src.Name(), err)
				res.BatchesSkipped++
				metrics.RecordRows(res.Cohort, "batch_errors", 1)
				continue
			}
			res.RowsTransformed += int64(out.Len())
			metrics.RecordRows(res.Cohort, "transformed", int64(out.Len()))

			if err := sk.Add(ctx, out); err != nil {
				br.Close()
				return err // flush failure is fatal for the cohort
			}
		}
		br.Close()

		if readErr != nil {
			log.Printf("engine: cohort=%s skipping resource %s: %v", res.Cohort, src.Name(), readErr)
			res.ResourcesSkipped++
			metrics.RecordRows(res.Cohort, "resource_errors", 1)
		}
	}
	return nil
}

// collect materializes the cohort's declared URLs into its resource
// directory, resuming partial downloads. A failed download skips that
// resource only.
func (e *Engine) collect(ctx context.Context, c config.Cohort, dir string) error {
	urls := append([]string(nil), c.URLs...)
	if c.URLList != "" {
		listed, err := file.ReadList(c.URLList)
		if err != nil {
			return fmt.Errorf("read url list: %w", err)
		}
		urls = append(urls, listed...)
	}
	if len(urls) == 0 {
		return nil
	}
	if err := ensureDir(dir); err != nil {
		return err
	}

	for _, raw := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest := filepath.Join(dir, urlBase(raw))
		if err := e.fetch.FetchResume(ctx, raw, dest); err != nil {
			log.Printf("engine: cohort=%s fetch failed for %s: %v", c.Name, raw, err)
			metrics.RecordRows(c.Name, "resource_errors", 1)
		}
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cohort dir: %w", err)
	}
	return nil
}

// urlBase extracts a usable local filename from a resource URL.
func urlBase(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(raw)
}

func logSummary(r Result) {
	if r.Skipped {
		log.Printf("summary: cohort=%s skipped (no numeric content)", r.Cohort)
		return
	}
	log.Printf(
		"summary: cohort=%s numeric_cols=%d rows_transformed=%d rows_flushed=%d artifacts=%v resources_skipped=%d batches_skipped=%d",
		r.Cohort, len(r.NumericCols), r.RowsTransformed, r.RowsFlushed,
		r.Artifacts, r.ResourcesSkipped, r.BatchesSkipped,
	)
}
