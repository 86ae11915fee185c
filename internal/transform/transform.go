// Package transform applies robust scaling and batch-local standardization to
// record batches.
//
// For every numeric column the transformer emits three output columns: the
// robust-scaled value (value minus the cohort center, over the cohort
// spread), a z-score standardized within the current batch, and a boolean
// significance flag on that z-score. Identifier columns pass through
// unchanged; all other non-numeric columns are dropped.
//
// The z-score is deliberately local to each batch: it has zero mean and unit
// variance within the batch, not across the cohort, so the significance flag
// is relative to the batch's own distribution and can vary with batch
// boundaries. This mirrors the estimator's streaming budget; see DESIGN.md
// before changing it to cohort-global semantics, since that alters output
// values.
package transform

import (
	"fmt"
	"math"

	"cohortnorm/internal/discover"
	"cohortnorm/internal/stats"
	"cohortnorm/internal/table"
)

// Transformer rewrites input batches into output batches. It is stateless
// across batches and safe to reuse for every batch of a cohort.
type Transformer struct {
	ids     []string
	numeric []string
	stats   map[string]stats.Robust
	sigZ    float64

	inCols  []string
	outCols []string
}

// New builds a Transformer for the cohort's schema and statistics. sigZ is
// the significance threshold on |z|.
func New(schema discover.Schema, st map[string]stats.Robust, sigZ float64) *Transformer {
	t := &Transformer{
		ids:     schema.ID,
		numeric: schema.Numeric,
		stats:   st,
		sigZ:    sigZ,
	}

	t.inCols = append(append([]string{}, t.ids...), t.numeric...)
	t.outCols = append([]string{}, t.ids...)
	for _, c := range t.numeric {
		t.outCols = append(t.outCols, c, c+"_z", c+"_sig")
	}
	return t
}

// InputColumns is the exact column subset the transform pass must read:
// identifiers first, then the numeric columns.
func (t *Transformer) InputColumns() []string { return t.inCols }

// OutputColumns is the schema of every batch Apply produces.
func (t *Transformer) OutputColumns() []string { return t.outCols }

// Apply transforms one input batch (aligned to InputColumns) into one output
// batch (aligned to OutputColumns) of the same row count.
//
// Missing numeric cells are filled with the column's estimated center before
// scaling. A present cell that cannot be parsed as a number fails the whole
// batch; the caller logs and skips it, and processing continues with the next
// batch.
func (t *Transformer) Apply(in *table.Batch) (*table.Batch, error) {
	n := in.Len()
	out := table.New(t.outCols, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(t.outCols))
		copy(row, in.Rows[i][:len(t.ids)])
		out.Rows = append(out.Rows, row)
	}

	scaled := make([]float64, n)
	for j, col := range t.numeric {
		st := t.stats[col]
		inIx := len(t.ids) + j

		for i := 0; i < n; i++ {
			v, missing, numeric := table.CellFloat(in.Rows[i][inIx])
			if !numeric {
				return nil, fmt.Errorf("transform: column %s row %d: non-numeric value %v", col, i, in.Rows[i][inIx])
			}
			if missing {
				v = st.Center
			}
			scaled[i] = (v - st.Center) / st.Spread
		}

		mean, std := meanStd(scaled)
		outIx := len(t.ids) + 3*j
		for i := 0; i < n; i++ {
			z := 0.0
			if std > 0 {
				z = (scaled[i] - mean) / std
			}
			out.Rows[i][outIx] = scaled[i]
			out.Rows[i][outIx+1] = z
			out.Rows[i][outIx+2] = math.Abs(z) > t.sigZ
		}
	}
	return out, nil
}

// meanStd returns the mean and population standard deviation of vals.
func meanStd(vals []float64) (mean, std float64) {
	n := float64(len(vals))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / n

	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}
