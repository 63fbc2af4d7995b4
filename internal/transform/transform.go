// Package transform shapes fetched pages into raw landing batches.
package transform

import (
	"fmt"
	"time"

	"github.com/epidata/casepipe/internal/types"
)

// Transformer projects source records onto the declared column set and
// stamps each batch with its ingestion time. Source fields outside the
// declared set are discarded; declared fields missing from a record land
// as null.
type Transformer struct {
	// Now supplies the ingestion stamp. Defaults to time.Now.
	Now func() time.Time
}

// New creates a Transformer using the wall clock.
func New() *Transformer {
	return &Transformer{Now: time.Now}
}

// ToBatch converts one page into a raw landing batch. Every row in the
// batch carries the same ingestion stamp, taken once per call. An empty
// page yields a valid zero-row batch.
func (t *Transformer) ToBatch(page types.Page) (*types.Batch, error) {
	columns := types.RawColumns()
	keep := types.KeepColumns()
	batch := types.NewBatch(columns)

	stamp := t.Now().UTC()

	for i, record := range page {
		if record == nil {
			return nil, &types.SchemaError{
				Message: fmt.Sprintf("record %d is null", i),
			}
		}

		row := make([]any, 0, len(columns))
		for _, col := range keep {
			v, ok := record[col]
			if !ok || v == nil {
				row = append(row, nil)
				continue
			}
			row = append(row, types.ToString(v))
		}
		row = append(row, stamp)

		if err := batch.AppendRow(row); err != nil {
			return nil, err
		}
	}

	return batch, nil
}
