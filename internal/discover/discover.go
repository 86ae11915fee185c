// Package discover determines the working schema of a cohort: which columns
// are numeric enough to normalize, and which columns identify rows.
//
// Discovery reads a bounded prefix of every resource and inspects run-time
// cell types. A column counts as numeric within one resource when the sampled
// prefix holds at least one value for it and every sampled value parses as a
// float; the cohort-level numeric set is the union of the per-resource sets,
// so a column observed numeric anywhere is normalized everywhere. The union
// is sorted lexicographically so repeated runs over an unchanged resource set
// produce identical schemas.
package discover

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strings"

	"cohortnorm/internal/datasource"
	"cohortnorm/internal/reader"
	"cohortnorm/internal/table"
)

// Schema is the resolved working schema of one cohort. It is computed once
// per run and passed by value through the remaining stages.
type Schema struct {
	// Numeric is the sorted union of columns found numeric in any resource.
	Numeric []string

	// ID is the sorted set of identifier columns seen across resources.
	ID []string

	// Sampled counts resources that contributed a sample; unreadable
	// resources are excluded.
	Sampled int
}

// Empty reports whether the cohort has nothing to normalize.
func (s Schema) Empty() bool { return len(s.Numeric) == 0 }

// Discover samples up to sampleRows rows from every resource and returns the
// cohort schema. Unreadable resources are logged and skipped; they never fail
// the cohort. idDecl lists exact identifier column names; columns whose name
// contains "id" (case-insensitive) are identifiers regardless of declaration.
func Discover(
	ctx context.Context,
	sources []datasource.Source,
	ropt reader.Options,
	sampleRows int,
	idDecl []string,
) (Schema, error) {
	declared := make(map[string]bool, len(idDecl))
	for _, c := range idDecl {
		declared[c] = true
	}

	numeric := map[string]bool{}
	ids := map[string]bool{}
	sampled := 0

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return Schema{}, err
		}

		ropt := ropt
		ropt.BatchRows = sampleRows
		ropt.Cols = nil

		br, err := reader.Open(ctx, src, ropt)
		if err != nil {
			log.Printf("discover: skipping sample read for %s: %v", src.Name(), err)
			continue
		}

		batch, err := br.Next(ctx)
		if err != nil && err != io.EOF {
			br.Close()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Schema{}, err
			}
			log.Printf("discover: skipping sample read for %s: %v", src.Name(), err)
			continue
		}
		br.Close()
		sampled++

		if batch == nil {
			continue // header-only resource: contributes column names but no types
		}
		for c, col := range batch.Columns {
			if declared[col] || strings.Contains(strings.ToLower(col), "id") {
				ids[col] = true
			}
			if columnNumeric(batch, c) {
				numeric[col] = true
			}
		}
	}

	s := Schema{
		Numeric: sortedKeys(numeric),
		ID:      sortedKeys(ids),
		Sampled: sampled,
	}
	// Identifier columns are never normalized, even when their values happen
	// to parse as numbers.
	s.Numeric = subtract(s.Numeric, ids)
	return s, nil
}

// columnNumeric reports whether column c of the sampled batch has at least
// one value and every present value parses as a float.
func columnNumeric(b *table.Batch, c int) bool {
	seen := false
	for r := range b.Rows {
		_, missing, numeric := table.CellFloat(b.Rows[r][c])
		if missing {
			continue
		}
		if !numeric {
			return false
		}
		seen = true
	}
	return seen
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func subtract(cols []string, drop map[string]bool) []string {
	out := cols[:0]
	for _, c := range cols {
		if !drop[c] {
			out = append(out, c)
		}
	}
	return out
}
