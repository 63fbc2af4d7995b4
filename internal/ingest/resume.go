package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/epidata/casepipe/internal/logger"
)

// RunStore persists per-run progress in the sink so operators can see
// where a run stopped and pick a restart offset. It is bookkeeping only:
// the pipeline never reads it to alter behavior.
type RunStore struct {
	db  *sql.DB
	log *logger.Logger
}

// RunRecord is one row of the run-state table.
type RunRecord struct {
	ID             int64
	Job            string
	State          RunState
	LastOffset     int
	RecordsFetched int
	LastError      sql.NullString
	StartedAt      time.Time
	FinishedAt     sql.NullTime
}

// NewRunStore creates a run-state store on the sink connection.
func NewRunStore(db *sql.DB, log *logger.Logger) *RunStore {
	return &RunStore{db: db, log: log}
}

// EnsureTable creates the run-state table if it does not exist.
func (s *RunStore) EnsureTable(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ingest_run (
		id bigserial PRIMARY KEY,
		job text NOT NULL,
		state text NOT NULL,
		last_offset bigint NOT NULL DEFAULT 0,
		records_fetched bigint NOT NULL DEFAULT 0,
		last_error text,
		started_at timestamptz NOT NULL,
		finished_at timestamptz
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create run-state table: %w", err)
	}
	return nil
}

// Begin records the start of a run and returns its id.
func (s *RunStore) Begin(ctx context.Context, job string, startOffset int) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO ingest_run (job, state, last_offset, started_at)
		 VALUES ($1, $2, $3, NOW()) RETURNING id`,
		job, string(StateRunning), startOffset,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	return id, nil
}

// Checkpoint updates run progress after each landed page.
func (s *RunStore) Checkpoint(ctx context.Context, runID int64, offset, fetched int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingest_run SET last_offset = $1, records_fetched = $2 WHERE id = $3`,
		offset, fetched, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record checkpoint: %w", err)
	}
	return nil
}

// Finish marks a run terminal with its final state, counters and the
// error that stopped it, if any.
func (s *RunStore) Finish(ctx context.Context, runID int64, state RunState, offset, fetched int, runErr error) error {
	var lastError sql.NullString
	if runErr != nil {
		lastError = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingest_run SET state = $1, last_offset = $2, records_fetched = $3, last_error = $4, finished_at = NOW()
		 WHERE id = $5`,
		string(state), offset, fetched, lastError, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// LastRun returns the most recent run for a job, or nil if none exists.
func (s *RunStore) LastRun(ctx context.Context, job string) (*RunRecord, error) {
	var rec RunRecord
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, job, state, last_offset, records_fetched, last_error, started_at, finished_at
		 FROM ingest_run WHERE job = $1 ORDER BY id DESC LIMIT 1`,
		job,
	).Scan(&rec.ID, &rec.Job, &state, &rec.LastOffset, &rec.RecordsFetched, &rec.LastError, &rec.StartedAt, &rec.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}
	rec.State = RunState(state)
	return &rec, nil
}
