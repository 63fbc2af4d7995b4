// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"github.com/elliotchance/orderedmap/v2"
)

// ColumnKind classifies a declared column for transformation and cleaning.
type ColumnKind int

const (
	// KindText columns are passed through with whitespace trimming only.
	KindText ColumnKind = iota
	// KindDate columns are parsed from free-form text into time.Time.
	KindDate
	// KindRegionCode columns are trimmed, upper-cased and truncated to two characters.
	KindRegionCode
	// KindCategorical columns map missing/blank/ambiguous values to "Unknown".
	KindCategorical
	// KindYesNo columns are normalized to one of "YES", "NO", "UNKNOWN".
	KindYesNo
)

// IngestedAtColumn is the batch lineage stamp appended by the transformer.
// It is present in the raw landing table only; the cleaner drops it.
const IngestedAtColumn = "_ingested_at"

// Canonical tokens for normalized categorical values.
const (
	UnknownToken = "Unknown"
	YesToken     = "YES"
	NoToken      = "NO"
	UnknownYN    = "UNKNOWN"
)

// KeepSchema returns the declared column set in its fixed order, mapped to
// the kind each column is cleaned as. The order is part of the contract:
// transformer and cleaner output columns in exactly this order.
func KeepSchema() *orderedmap.OrderedMap[string, ColumnKind] {
	m := orderedmap.NewOrderedMap[string, ColumnKind]()
	m.Set("case_month", KindText)
	m.Set("cdc_case_earliest_dt", KindDate)
	m.Set("res_state", KindRegionCode)
	m.Set("age_group", KindCategorical)
	m.Set("sex", KindCategorical)
	m.Set("race", KindCategorical)
	m.Set("ethnicity", KindCategorical)
	m.Set("death_yn", KindYesNo)
	m.Set("hosp_yn", KindYesNo)
	m.Set("icu_yn", KindYesNo)
	m.Set("medcond_yn", KindYesNo)
	return m
}

// KeepColumns returns the declared column names in order.
func KeepColumns() []string {
	return KeepSchema().Keys()
}

// RawColumns returns the raw landing column set: the KEEP set plus the
// trailing ingestion stamp.
func RawColumns() []string {
	return append(KeepColumns(), IngestedAtColumn)
}
