package types

import (
	"fmt"
	"strings"
	"time"
)

// Record is one raw source record: an unordered mapping of field name to
// scalar value as decoded from the API response.
type Record map[string]any

// Page is one bounded slice of source records fetched via a single API call.
type Page []Record

// Batch is a rectangular in-memory table: an ordered set of named columns,
// each backed by an equal-length value slice. Cell values are nil, string,
// or time.Time. A Batch is owned by exactly one pipeline stage at a time.
type Batch struct {
	columns []string
	data    map[string][]any
	rows    int
}

// NewBatch creates an empty batch with the given column set, in order.
func NewBatch(columns []string) *Batch {
	b := &Batch{
		columns: append([]string(nil), columns...),
		data:    make(map[string][]any, len(columns)),
	}
	for _, c := range b.columns {
		b.data[c] = []any{}
	}
	return b
}

// Columns returns the column names in declared order.
func (b *Batch) Columns() []string {
	return append([]string(nil), b.columns...)
}

// NumRows returns the number of rows in the batch.
func (b *Batch) NumRows() int {
	return b.rows
}

// AppendRow appends one row. Values must align with Columns() order.
func (b *Batch) AppendRow(values []any) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("row has %d values, batch has %d columns", len(values), len(b.columns))
	}
	for i, c := range b.columns {
		b.data[c] = append(b.data[c], values[i])
	}
	b.rows++
	return nil
}

// Row returns the values of row i in column order.
func (b *Batch) Row(i int) []any {
	out := make([]any, len(b.columns))
	for j, c := range b.columns {
		out[j] = b.data[c][i]
	}
	return out
}

// Value returns the cell at (row, column). Unknown columns yield nil.
func (b *Batch) Value(row int, column string) any {
	col, ok := b.data[column]
	if !ok || row < 0 || row >= len(col) {
		return nil
	}
	return col[row]
}

// Column returns the full value slice for a column, or nil if absent.
func (b *Batch) Column(name string) []any {
	return b.data[name]
}

// SetValue overwrites the cell at (row, column).
func (b *Batch) SetValue(row int, column string, v any) {
	if col, ok := b.data[column]; ok && row >= 0 && row < len(col) {
		col[row] = v
	}
}

// Project returns a new batch holding only the named columns, in the given
// order. Columns absent from the source come back all-null.
func (b *Batch) Project(columns []string) *Batch {
	out := NewBatch(columns)
	for i := 0; i < b.rows; i++ {
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = b.Value(i, c)
		}
		// Column counts match by construction.
		_ = out.AppendRow(row)
	}
	return out
}

// rowKeySep is a value separator unlikely to occur in source data.
const rowKeySep = "\x1f"

// RowKey returns a deterministic string key for row i, used for exact
// duplicate detection across all columns.
func (b *Batch) RowKey(i int) string {
	parts := make([]string, 0, len(b.columns))
	for _, c := range b.columns {
		v := b.data[c][i]
		switch t := v.(type) {
		case nil:
			parts = append(parts, "\x00")
		case time.Time:
			parts = append(parts, t.UTC().Format(time.RFC3339Nano))
		default:
			parts = append(parts, ToString(t))
		}
	}
	return strings.Join(parts, rowKeySep)
}
