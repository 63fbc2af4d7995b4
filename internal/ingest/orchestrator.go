// Package ingest drives the fetch, land, clean and load cycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epidata/casepipe/internal/clean"
	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/loader"
	"github.com/epidata/casepipe/internal/logger"
	"github.com/epidata/casepipe/internal/transform"
	"github.com/epidata/casepipe/internal/types"
)

// RunState is the terminal state of an ingestion run.
type RunState string

const (
	// StateRunning marks a run still in progress.
	StateRunning RunState = "running"
	// StateDone is the successful terminal state, reached at the record
	// ceiling or when the source runs dry.
	StateDone RunState = "done"
	// StateExhausted marks the source running out of records before the
	// ceiling. Transitional: the run still terminates in StateDone.
	StateExhausted RunState = "exhausted"
	// StateFailed means a stage failed; the run stopped at the recorded offset.
	StateFailed RunState = "failed"
)

// Fetcher fetches one page of source records.
type Fetcher interface {
	FetchPage(ctx context.Context, limit, offset int) (types.Page, error)
}

// BatchLoader lands batches in the sink.
type BatchLoader interface {
	EnsureTable(ctx context.Context, sink loader.Sink) error
	Load(ctx context.Context, sink loader.Sink, batch *types.Batch) error
	ReadBack(ctx context.Context, stamp time.Time) (*types.Batch, error)
}

// BatchVerifier confirms a landed batch.
type BatchVerifier interface {
	VerifyBatch(ctx context.Context, stamp time.Time, expected int) error
}

// Checkpointer records run progress for operators. Progress recording is
// informational: a checkpoint failure never stops the run.
type Checkpointer interface {
	Checkpoint(ctx context.Context, runID int64, offset, fetched int) error
}

// Result summarizes a completed or failed run.
type Result struct {
	State           RunState
	PagesFetched    int
	RecordsFetched  int
	RawRowsLoaded   int
	CleanRowsLoaded int
	FinalOffset     int
	Duration        time.Duration
}

// Orchestrator runs the bounded ingestion loop: fetch a page, land it
// raw, verify, clean, load, advance the offset, repeat until the record
// ceiling or source exhaustion.
type Orchestrator struct {
	fetcher     Fetcher
	loader      BatchLoader
	verifier    BatchVerifier
	transformer *transform.Transformer
	cleaner     *clean.Cleaner
	cfg         *config.ProcessingConfig
	log         *logger.Logger

	checkpointer Checkpointer
	runID        int64
}

// New creates an Orchestrator.
func New(fetcher Fetcher, batchLoader BatchLoader, batchVerifier BatchVerifier, cfg *config.ProcessingConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		fetcher:     fetcher,
		loader:      batchLoader,
		verifier:    batchVerifier,
		transformer: transform.New(),
		cleaner:     clean.New(),
		cfg:         cfg,
		log:         log,
	}
}

// WithCheckpointer attaches a run-state store recording per-page progress.
func (o *Orchestrator) WithCheckpointer(cp Checkpointer, runID int64) *Orchestrator {
	o.checkpointer = cp
	o.runID = runID
	return o
}

// Run executes the ingestion loop. On failure the returned error is a
// StageError naming the stage and the offset reached, so the run can be
// re-invoked from that offset.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{State: StateRunning, FinalOffset: o.cfg.StartOffset}

	if err := o.loader.EnsureTable(ctx, loader.SinkRaw); err != nil {
		return o.fail(result, start, "prepare", err)
	}
	if err := o.loader.EnsureTable(ctx, loader.SinkClean); err != nil {
		return o.fail(result, start, "prepare", err)
	}

	offset := o.cfg.StartOffset
	sleep := time.Duration(o.cfg.SleepSeconds * float64(time.Second))

	for result.RecordsFetched < o.cfg.MaxRecords {
		if err := ctx.Err(); err != nil {
			return o.fail(result, start, "fetch", err)
		}

		limit := o.cfg.PageSize
		if remaining := o.cfg.MaxRecords - result.RecordsFetched; remaining < limit {
			limit = remaining
		}

		pageLog := o.log.WithPage(result.PagesFetched + 1).WithOffset(offset)
		pageLog.Infow("fetching page", "limit", limit)

		page, err := o.fetcher.FetchPage(ctx, limit, offset)
		if err != nil {
			return o.fail(result, start, "fetch", err)
		}

		if len(page) == 0 {
			pageLog.Infow("source exhausted")
			result.State = StateExhausted
			break
		}

		result.PagesFetched++
		cleanRows, err := o.processPage(ctx, page, pageLog)
		if err != nil {
			return o.fail(result, start, stageOf(err), err)
		}
		result.CleanRowsLoaded += cleanRows

		result.RecordsFetched += len(page)
		result.RawRowsLoaded += len(page)
		offset += len(page)
		result.FinalOffset = offset
		o.checkpoint(ctx, offset, result.RecordsFetched)

		if len(page) < limit {
			pageLog.Infow("short page, source exhausted", "rows", len(page))
			result.State = StateExhausted
			break
		}
		if result.RecordsFetched >= o.cfg.MaxRecords {
			result.State = StateDone
			break
		}

		if sleep > 0 {
			select {
			case <-ctx.Done():
				return o.fail(result, start, "fetch", ctx.Err())
			case <-time.After(sleep):
			}
		}
	}

	// Exhaustion is transitional: running out of source records before the
	// ceiling is still a successful run.
	if result.State == StateRunning || result.State == StateExhausted {
		result.State = StateDone
	}
	result.Duration = time.Since(start)

	o.log.Infow("ingestion run finished",
		"state", string(result.State),
		"pages", result.PagesFetched,
		"records", result.RecordsFetched,
		"final_offset", result.FinalOffset,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// processPage lands one page raw, verifies it, cleans it and loads the
// cleaned rows. Cleaning reads the batch back from the sink when
// configured, otherwise it reuses the in-memory batch.
func (o *Orchestrator) processPage(ctx context.Context, page types.Page, pageLog *logger.Logger) (int, error) {
	raw, err := o.transformer.ToBatch(page)
	if err != nil {
		return 0, &stageFailure{stage: "transform", err: err}
	}
	stamp, _ := raw.Value(0, types.IngestedAtColumn).(time.Time)

	if err := o.loader.Load(ctx, loader.SinkRaw, raw); err != nil {
		return 0, &stageFailure{stage: "load_raw", err: err}
	}
	pageLog.Infow("raw batch landed", "rows", raw.NumRows())

	if err := o.verifier.VerifyBatch(ctx, stamp, raw.NumRows()); err != nil {
		return 0, &stageFailure{stage: "verify", err: err}
	}

	source := raw
	if o.cfg.ReadBack {
		source, err = o.loader.ReadBack(ctx, stamp)
		if err != nil {
			return 0, &stageFailure{stage: "read_back", err: err}
		}
	}

	cleaned, err := o.cleaner.Clean(source)
	if err != nil {
		return 0, &stageFailure{stage: "clean", err: err}
	}

	if err := o.loader.Load(ctx, loader.SinkClean, cleaned); err != nil {
		return 0, &stageFailure{stage: "load_clean", err: err}
	}
	pageLog.Infow("clean batch loaded", "rows", cleaned.NumRows(), "duplicates_dropped", raw.NumRows()-cleaned.NumRows())

	return cleaned.NumRows(), nil
}

// checkpoint records progress when a store is attached.
func (o *Orchestrator) checkpoint(ctx context.Context, offset, fetched int) {
	if o.checkpointer == nil {
		return
	}
	if err := o.checkpointer.Checkpoint(ctx, o.runID, offset, fetched); err != nil {
		o.log.Warnw("failed to record checkpoint", "offset", offset, "error", err)
	}
}

// fail finalizes a result for a stage failure.
func (o *Orchestrator) fail(result *Result, start time.Time, stage string, err error) (*Result, error) {
	result.State = StateFailed
	result.Duration = time.Since(start)

	var sf *stageFailure
	if errors.As(err, &sf) {
		stage = sf.stage
		err = sf.err
	}

	return result, &types.StageError{
		Stage:  stage,
		Offset: result.FinalOffset,
		Err:    err,
	}
}

// stageFailure tags an error with the pipeline stage it occurred in so
// Run can wrap it with the offset reached.
type stageFailure struct {
	stage string
	err   error
}

func (s *stageFailure) Error() string {
	return fmt.Sprintf("%s: %v", s.stage, s.err)
}

func (s *stageFailure) Unwrap() error { return s.err }

func stageOf(err error) string {
	var sf *stageFailure
	if errors.As(err, &sf) {
		return sf.stage
	}
	return "ingest"
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: %d pages, %d records, final offset %d",
		r.State, r.PagesFetched, r.RecordsFetched, r.FinalOffset)
}
