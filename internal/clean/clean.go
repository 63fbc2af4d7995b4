// Package clean normalizes raw landing batches into analytic batches.
package clean

import (
	"fmt"
	"strings"
	"time"

	"github.com/epidata/casepipe/internal/types"
)

// dateLayouts are tried in order when parsing date columns. The source
// emits floating timestamps with millisecond precision; bare dates appear
// in older extracts.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// missingTokens are source spellings of "no value" in categorical columns.
var missingTokens = map[string]bool{
	"":        true,
	"none":    true,
	"nan":     true,
	"null":    true,
	"missing": true,
}

// Cleaner turns a raw landing batch into a cleaned analytic batch:
// the ingestion stamp is dropped, exact duplicates are removed, dates are
// parsed, region codes canonicalized and categorical values mapped onto
// their fixed token sets.
type Cleaner struct{}

// New creates a Cleaner.
func New() *Cleaner {
	return &Cleaner{}
}

// Clean produces the analytic batch for one raw batch. The input is not
// modified. Cleaning is idempotent: feeding a cleaned batch back through
// yields an equal batch.
func (c *Cleaner) Clean(raw *types.Batch) (*types.Batch, error) {
	projected := raw.Project(types.KeepColumns())

	// Normalize before deduplicating: rows differing only in spelling
	// ("y" vs " Y ") must collapse to one.
	schema := types.KeepSchema()
	for row := 0; row < projected.NumRows(); row++ {
		for el := schema.Front(); el != nil; el = el.Next() {
			col, kind := el.Key, el.Value
			projected.SetValue(row, col, normalizeValue(projected.Value(row, col), kind))
		}
	}

	deduped := dropDuplicates(projected)

	if err := validate(deduped); err != nil {
		return nil, err
	}
	return deduped, nil
}

// dropDuplicates removes exact duplicate rows, keeping the first
// occurrence in input order.
func dropDuplicates(b *types.Batch) *types.Batch {
	out := types.NewBatch(b.Columns())
	seen := make(map[string]bool, b.NumRows())

	for i := 0; i < b.NumRows(); i++ {
		key := b.RowKey(i)
		if seen[key] {
			continue
		}
		seen[key] = true
		// Column counts match by construction.
		_ = out.AppendRow(b.Row(i))
	}
	return out
}

func normalizeValue(v any, kind types.ColumnKind) any {
	switch kind {
	case types.KindText:
		return normalizeText(v)
	case types.KindDate:
		return normalizeDate(v)
	case types.KindRegionCode:
		return normalizeRegionCode(v)
	case types.KindCategorical:
		return normalizeCategorical(v)
	case types.KindYesNo:
		return normalizeYesNo(v)
	}
	return v
}

func normalizeText(v any) any {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(types.ToString(v))
	if s == "" {
		return nil
	}
	return s
}

// normalizeDate parses a textual date into time.Time. Unparseable or
// missing values become null rather than failing the batch. Already-parsed
// values pass through so cleaning stays idempotent.
func normalizeDate(v any) any {
	if v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t
	}

	s := strings.TrimSpace(types.ToString(v))
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return nil
}

// normalizeRegionCode trims, upper-cases and truncates to the two-letter
// code. Blank values become null.
func normalizeRegionCode(v any) any {
	if v == nil {
		return nil
	}
	s := strings.ToUpper(strings.TrimSpace(types.ToString(v)))
	if s == "" {
		return nil
	}
	if len(s) > 2 {
		s = s[:2]
	}
	return s
}

// normalizeCategorical maps every spelling of a missing value to the
// canonical Unknown token and passes real values through trimmed.
func normalizeCategorical(v any) any {
	if v == nil {
		return types.UnknownToken
	}
	s := strings.TrimSpace(types.ToString(v))
	if missingTokens[strings.ToLower(s)] || strings.EqualFold(s, types.UnknownToken) {
		return types.UnknownToken
	}
	return s
}

// normalizeYesNo upper-cases first and then matches, so that padded or
// lower-case answers like " n " still land on their canonical token.
func normalizeYesNo(v any) any {
	if v == nil {
		return types.UnknownYN
	}
	switch strings.ToUpper(strings.TrimSpace(types.ToString(v))) {
	case "Y", "YES":
		return types.YesToken
	case "N", "NO":
		return types.NoToken
	default:
		return types.UnknownYN
	}
}

// validate enforces the cleaned batch contract before it may be loaded.
func validate(b *types.Batch) error {
	want := types.KeepColumns()
	got := b.Columns()
	if len(got) != len(want) {
		return &types.ValidationError{
			Message: fmt.Sprintf("expected %d columns, got %d", len(want), len(got)),
		}
	}
	for i := range want {
		if got[i] != want[i] {
			return &types.ValidationError{
				Message: fmt.Sprintf("column %d is %q, expected %q", i, got[i], want[i]),
			}
		}
	}

	seen := make(map[string]bool, b.NumRows())
	schema := types.KeepSchema()
	for row := 0; row < b.NumRows(); row++ {
		key := b.RowKey(row)
		if seen[key] {
			return &types.ValidationError{
				Message: fmt.Sprintf("row %d duplicates an earlier row", row),
			}
		}
		seen[key] = true

		for el := schema.Front(); el != nil; el = el.Next() {
			col, kind := el.Key, el.Value
			v := b.Value(row, col)

			switch kind {
			case types.KindDate:
				if v != nil {
					if _, ok := v.(time.Time); !ok {
						return &types.ValidationError{
							Message: fmt.Sprintf("row %d: %s is neither null nor a parsed date", row, col),
						}
					}
				}
			case types.KindCategorical:
				s, ok := v.(string)
				if !ok || s == "" {
					return &types.ValidationError{
						Message: fmt.Sprintf("row %d: %s is empty after cleaning", row, col),
					}
				}
			case types.KindYesNo:
				s, _ := v.(string)
				if s != types.YesToken && s != types.NoToken && s != types.UnknownYN {
					return &types.ValidationError{
						Message: fmt.Sprintf("row %d: %s value %q outside the yes/no token set", row, col, s),
					}
				}
			}
		}
	}
	return nil
}
