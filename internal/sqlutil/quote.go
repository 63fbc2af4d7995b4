// Package sqlutil provides SQL utility functions for casepipe.
package sqlutil

import (
	"regexp"
	"strconv"
	"strings"
)

// QuoteIdentifier quotes a PostgreSQL identifier (table name, column name)
// with double quotes. Existing double quotes are escaped by doubling them.
// Example: "my_table" -> "\"my_table\""
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// validIdentifierRegex matches identifier characters we accept for table
// and column names. Column names may carry a leading underscore
// (the ingestion stamp column does).
var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z_][a-zA-Z0-9_]*$")

// IsValidIdentifier reports whether name is a safe bare identifier.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// Placeholders returns a comma-joined list of PostgreSQL positional
// placeholders $start..$start+n-1, e.g. Placeholders(1, 3) -> "$1, $2, $3".
func Placeholders(start, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, "$"+strconv.Itoa(start+i))
	}
	return strings.Join(parts, ", ")
}
