// Package loader writes batches into the PostgreSQL sink tables.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/logger"
	"github.com/epidata/casepipe/internal/sqlutil"
	"github.com/epidata/casepipe/internal/types"
)

// Sink selects one of the two destination tables.
type Sink string

const (
	// SinkRaw is the landing table holding records as fetched, plus the
	// ingestion stamp.
	SinkRaw Sink = "raw"
	// SinkClean is the analytic table holding cleaned records.
	SinkClean Sink = "clean"
)

// Loader appends batches to the sink tables. Each batch is written in a
// single transaction: either every row lands or none does.
type Loader struct {
	db         *sql.DB
	rawTable   string
	cleanTable string
	log        *logger.Logger
}

// New creates a Loader for the configured sink tables.
func New(db *sql.DB, cfg *config.SinkConfig, log *logger.Logger) *Loader {
	return &Loader{
		db:         db,
		rawTable:   cfg.RawTable,
		cleanTable: cfg.CleanTable,
		log:        log,
	}
}

// Table returns the destination table name for a sink.
func (l *Loader) Table(sink Sink) string {
	if sink == SinkRaw {
		return l.rawTable
	}
	return l.cleanTable
}

// columnsFor returns the expected column set for a sink, in order.
func columnsFor(sink Sink) []string {
	if sink == SinkRaw {
		return types.RawColumns()
	}
	return types.KeepColumns()
}

// columnType maps a declared column to its sink type. The raw table is
// all text; the clean table carries a real date column for parsed dates.
func columnType(sink Sink, column string) string {
	if column == types.IngestedAtColumn {
		return "timestamptz"
	}
	if sink == SinkClean {
		schema := types.KeepSchema()
		if kind, ok := schema.Get(column); ok && kind == types.KindDate {
			return "date"
		}
	}
	return "text"
}

// EnsureTable creates the sink table if it does not exist and verifies
// that an existing table carries exactly the expected columns.
func (l *Loader) EnsureTable(ctx context.Context, sink Sink) error {
	table := l.Table(sink)
	if !sqlutil.IsValidIdentifier(table) {
		return &types.LoadError{Sink: string(sink), Cause: fmt.Errorf("invalid table name %q", table)}
	}

	defs := make([]string, 0, len(columnsFor(sink)))
	for _, col := range columnsFor(sink) {
		defs = append(defs, sqlutil.QuoteIdentifier(col)+" "+columnType(sink, col))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		sqlutil.QuoteIdentifier(table), strings.Join(defs, ", "))

	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return &types.LoadError{Sink: string(sink), Cause: fmt.Errorf("create table %s: %w", table, err)}
	}

	return l.checkColumns(ctx, sink)
}

// checkColumns verifies the destination column set against the declared
// one. A mismatch means the table was altered out from under the pipeline.
func (l *Loader) checkColumns(ctx context.Context, sink Sink) error {
	table := l.Table(sink)

	rows, err := l.db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1", table)
	if err != nil {
		return &types.LoadError{Sink: string(sink), Cause: fmt.Errorf("inspect table %s: %w", table, err)}
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return &types.LoadError{Sink: string(sink), Cause: err}
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return &types.LoadError{Sink: string(sink), Cause: err}
	}

	expected := columnsFor(sink)
	if len(existing) != len(expected) {
		return &types.LoadError{
			Sink:  string(sink),
			Cause: fmt.Errorf("table %s has %d columns, expected %d", table, len(existing), len(expected)),
		}
	}
	for _, col := range expected {
		if !existing[col] {
			return &types.LoadError{
				Sink:  string(sink),
				Cause: fmt.Errorf("table %s is missing column %s", table, col),
			}
		}
	}
	return nil
}

// Load appends every row of the batch to the sink table in one
// transaction. A batch whose columns differ from the destination is
// rejected before any row is written.
func (l *Loader) Load(ctx context.Context, sink Sink, batch *types.Batch) error {
	table := l.Table(sink)
	expected := columnsFor(sink)
	got := batch.Columns()

	if len(got) != len(expected) {
		return &types.LoadError{
			Sink:  string(sink),
			Cause: fmt.Errorf("batch has %d columns, table %s has %d", len(got), table, len(expected)),
		}
	}
	for i := range expected {
		if got[i] != expected[i] {
			return &types.LoadError{
				Sink:  string(sink),
				Cause: fmt.Errorf("batch column %q does not match table column %q", got[i], expected[i]),
			}
		}
	}

	if batch.NumRows() == 0 {
		return nil
	}

	quoted := make([]string, len(expected))
	for i, col := range expected {
		quoted[i] = sqlutil.QuoteIdentifier(col)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlutil.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		sqlutil.Placeholders(1, len(expected)),
	)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.LoadError{Sink: string(sink), Cause: fmt.Errorf("begin transaction: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		tx.Rollback()
		return &types.LoadError{Sink: string(sink), Cause: fmt.Errorf("prepare insert: %w", err)}
	}
	defer stmt.Close()

	for i := 0; i < batch.NumRows(); i++ {
		if _, err := stmt.ExecContext(ctx, batch.Row(i)...); err != nil {
			tx.Rollback()
			return &types.LoadError{
				Sink:  string(sink),
				Cause: fmt.Errorf("insert row %d: %w", i, err),
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.LoadError{Sink: string(sink), Cause: fmt.Errorf("commit: %w", err)}
	}

	l.log.Debugw("batch loaded", "sink", table, "rows", batch.NumRows())
	return nil
}

// RowCount returns the total number of rows in a sink table.
func (l *Loader) RowCount(ctx context.Context, sink Sink) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + sqlutil.QuoteIdentifier(l.Table(sink))
	if err := l.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, &types.LoadError{Sink: string(sink), Cause: fmt.Errorf("count rows: %w", err)}
	}
	return count, nil
}

// ReadBack fetches the raw rows landed under one ingestion stamp, for
// lineage-accurate cleaning from the sink instead of memory.
func (l *Loader) ReadBack(ctx context.Context, stamp time.Time) (*types.Batch, error) {
	columns := types.RawColumns()
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(quoted, ", "),
		sqlutil.QuoteIdentifier(l.rawTable),
		sqlutil.QuoteIdentifier(types.IngestedAtColumn),
	)

	rows, err := l.db.QueryContext(ctx, query, stamp)
	if err != nil {
		return nil, &types.ReadBackError{Cause: err}
	}
	defer rows.Close()

	batch := types.NewBatch(columns)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &types.ReadBackError{Cause: err}
		}
		if err := batch.AppendRow(values); err != nil {
			return nil, &types.ReadBackError{Cause: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &types.ReadBackError{Cause: err}
	}

	return batch, nil
}
