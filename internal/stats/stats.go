// Package stats estimates robust location and scale for every numeric column
// of a cohort under a fixed memory budget.
//
// The estimator reads a single bounded batch per resource (a deliberate bias
// toward early-file rows that keeps cost proportional to the resource count,
// not the row count), subsamples oversized batches with a fixed seed, and
// aggregates per-resource medians and interquartile ranges by taking the
// median across resources. The median-of-medians aggregate keeps any single
// skewed resource from dominating the cohort estimate.
package stats

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"sort"

	"cohortnorm/internal/datasource"
	"cohortnorm/internal/reader"
	"cohortnorm/internal/table"
)

// subsampleSeed fixes the subsampling RNG so repeated runs over unchanged
// resources estimate identical statistics.
const subsampleSeed = 0

// Robust holds the per-column estimate used by the transformer.
// Spread is never zero: degenerate columns fall back to 1.
type Robust struct {
	Center float64
	Spread float64
}

// Options bounds the sampling work per resource.
type Options struct {
	// BatchRows caps the single batch read from each resource.
	BatchRows int

	// SampleCap and Subsample control downsampling: when the batch exceeds
	// SampleCap rows, a uniform random Subsample of its rows is used instead.
	SampleCap int
	Subsample int
}

// Estimate computes one Robust value per numeric column.
//
// A resource that yields no usable values for a column contributes nothing
// (not zero) to that column's aggregate. A column with no usable values in
// any resource gets the neutral estimate {Center: 0, Spread: 1}. Unreadable
// resources are logged and skipped.
func Estimate(
	ctx context.Context,
	sources []datasource.Source,
	numeric []string,
	ropt reader.Options,
	opt Options,
) (map[string]Robust, error) {
	medians := make(map[string][]float64, len(numeric))
	iqrs := make(map[string][]float64, len(numeric))

	rng := rand.New(rand.NewSource(subsampleSeed))

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := sampleResource(ctx, src, numeric, ropt, opt.BatchRows)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Printf("stats: sampling failed for %s: %v", src.Name(), err)
			continue
		}
		if batch == nil {
			continue
		}

		rows := subsampleRows(batch, opt.SampleCap, opt.Subsample, rng)

		for c, col := range numeric {
			vals := columnValues(rows, c)
			if len(vals) == 0 {
				continue
			}
			sort.Float64s(vals)
			medians[col] = append(medians[col], quantile(vals, 0.5))
			iqrs[col] = append(iqrs[col], quantile(vals, 0.75)-quantile(vals, 0.25))
		}
	}

	out := make(map[string]Robust, len(numeric))
	for _, col := range numeric {
		r := Robust{Center: 0, Spread: 1}
		if m := medians[col]; len(m) > 0 {
			r.Center = medianOf(m)
		}
		if q := iqrs[col]; len(q) > 0 {
			if s := medianOf(q); s != 0 {
				r.Spread = s
			}
		}
		out[col] = r
	}
	return out, nil
}

// sampleResource reads the first batch of the resource restricted to the
// numeric columns. Later batches are intentionally not read.
func sampleResource(
	ctx context.Context,
	src datasource.Source,
	numeric []string,
	ropt reader.Options,
	batchRows int,
) (*table.Batch, error) {
	ropt.BatchRows = batchRows
	ropt.Cols = numeric

	br, err := reader.Open(ctx, src, ropt)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	batch, err := br.Next(ctx)
	if err == io.EOF {
		return nil, nil
	}
	return batch, err
}

// subsampleRows returns the batch rows, or a uniform random subset of size
// subsample when the batch exceeds capRows rows.
func subsampleRows(b *table.Batch, capRows, subsample int, rng *rand.Rand) [][]any {
	if b.Len() <= capRows || subsample <= 0 || b.Len() <= subsample {
		return b.Rows
	}
	idx := rng.Perm(b.Len())[:subsample]
	sort.Ints(idx)
	out := make([][]any, 0, subsample)
	for _, i := range idx {
		out = append(out, b.Rows[i])
	}
	return out
}

// columnValues collects the usable float values of column c, dropping missing
// and unparseable cells.
func columnValues(rows [][]any, c int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		v, missing, numeric := table.CellFloat(row[c])
		if missing || !numeric {
			continue
		}
		out = append(out, v)
	}
	return out
}

// quantile returns the q-th quantile of sorted values using linear
// interpolation between closest ranks, matching the convention of the
// statistics stacks the upstream collectors use.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// medianOf returns the median of an unsorted slice, sorting a copy.
func medianOf(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	return quantile(s, 0.5)
}
