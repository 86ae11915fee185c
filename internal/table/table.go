// Package table defines the record batch passed between pipeline stages.
//
// A Batch is a bounded, positional slice of rows sharing one column header.
// Cell values are kept as `any` so that readers can emit raw strings (or nil
// for missing cells) and transformers can rewrite cells in place as float64 /
// bool without reshaping the row.
package table

// Batch holds up to a configured number of rows read from one resource, or
// produced by one transform pass.
//
// Contract:
//   - Columns is shared by every row; len(row) == len(Columns).
//   - A nil cell means "missing". Readers emit string or nil; transformed
//     batches additionally carry float64 and bool cells.
//   - A Batch is owned by exactly one stage at a time and is not safe for
//     concurrent mutation.
type Batch struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty Batch for the given columns with capacity hint n.
func New(columns []string, n int) *Batch {
	return &Batch{Columns: columns, Rows: make([][]any, 0, n)}
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Index returns the position of the named column, or -1 when absent.
func (b *Batch) Index(name string) int {
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Float reads the cell at (row, col) as a float64. The second return is false
// for missing cells or cells of a non-numeric runtime type.
func (b *Batch) Float(row, col int) (float64, bool) {
	v := b.Rows[row][col]
	if v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
