package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/loader"
	"github.com/epidata/casepipe/internal/logger"
	"github.com/epidata/casepipe/internal/types"
)

// fakeFetcher serves pages out of a fixed record slice, recording every
// (limit, offset) pair it is called with.
type fakeFetcher struct {
	records []types.Record
	calls   [][2]int
	err     error
}

func (f *fakeFetcher) FetchPage(ctx context.Context, limit, offset int) (types.Page, error) {
	f.calls = append(f.calls, [2]int{limit, offset})
	if f.err != nil {
		return nil, f.err
	}
	if offset >= len(f.records) {
		return types.Page{}, nil
	}
	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	return types.Page(f.records[offset:end]), nil
}

type fakeLoader struct {
	rawRows      int
	cleanRows    int
	loadErr      map[loader.Sink]error
	readBackErr  error
	readBackUsed bool
	lastRaw      *types.Batch
}

func (f *fakeLoader) EnsureTable(ctx context.Context, sink loader.Sink) error { return nil }

func (f *fakeLoader) Load(ctx context.Context, sink loader.Sink, batch *types.Batch) error {
	if err := f.loadErr[sink]; err != nil {
		return err
	}
	if sink == loader.SinkRaw {
		f.rawRows += batch.NumRows()
		f.lastRaw = batch
	} else {
		f.cleanRows += batch.NumRows()
	}
	return nil
}

func (f *fakeLoader) ReadBack(ctx context.Context, stamp time.Time) (*types.Batch, error) {
	f.readBackUsed = true
	if f.readBackErr != nil {
		return nil, f.readBackErr
	}
	return f.lastRaw, nil
}

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) VerifyBatch(ctx context.Context, stamp time.Time, expected int) error {
	f.calls++
	return f.err
}

// makeRecords builds n distinct records so nothing is deduplicated.
func makeRecords(n int) []types.Record {
	records := make([]types.Record, n)
	for i := range records {
		records[i] = types.Record{
			"case_month": fmt.Sprintf("2021-%06d", i),
			"res_state":  "NY",
		}
	}
	return records
}

func testProcessing(pageSize, maxRecords int) *config.ProcessingConfig {
	return &config.ProcessingConfig{
		PageSize:   pageSize,
		MaxRecords: maxRecords,
	}
}

func newTestOrchestrator(f *fakeFetcher, l *fakeLoader, v *fakeVerifier, cfg *config.ProcessingConfig) *Orchestrator {
	return New(f, l, v, cfg, logger.NewDefault())
}

func TestRun_PageScheduleHonorsCeiling(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(500)}
	ld := &fakeLoader{}
	vf := &fakeVerifier{}

	result, err := newTestOrchestrator(fetcher, ld, vf, testProcessing(50, 120)).Run(context.Background())
	require.NoError(t, err)

	// The last page is clamped so the ceiling is never exceeded.
	assert.Equal(t, [][2]int{{50, 0}, {50, 50}, {20, 100}}, fetcher.calls)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 3, result.PagesFetched)
	assert.Equal(t, 120, result.RecordsFetched)
	assert.Equal(t, 120, result.RawRowsLoaded)
	assert.Equal(t, 120, result.CleanRowsLoaded)
	assert.Equal(t, 120, result.FinalOffset)
	assert.Equal(t, 3, vf.calls)
}

func TestRun_ShortPageStopsWithoutFurtherFetch(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(80)}
	ld := &fakeLoader{}

	result, err := newTestOrchestrator(fetcher, ld, &fakeVerifier{}, testProcessing(50, 150)).Run(context.Background())
	require.NoError(t, err)

	// The 30-row page is processed, then the run stops: no third fetch.
	assert.Equal(t, [][2]int{{50, 0}, {50, 50}}, fetcher.calls)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 80, result.RecordsFetched)
	assert.Equal(t, 80, result.RawRowsLoaded)
	assert.Equal(t, 80, result.FinalOffset)
}

func TestRun_EmptyFirstPage(t *testing.T) {
	fetcher := &fakeFetcher{records: nil}
	ld := &fakeLoader{}

	result, err := newTestOrchestrator(fetcher, ld, &fakeVerifier{}, testProcessing(50, 150)).Run(context.Background())
	require.NoError(t, err)

	// An immediately exhausted source still terminates successfully.
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 0, result.RecordsFetched)
	assert.Equal(t, 0, ld.rawRows)
}

func TestRun_StartOffsetHonored(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(200)}
	cfg := testProcessing(50, 100)
	cfg.StartOffset = 100

	result, err := newTestOrchestrator(fetcher, &fakeLoader{}, &fakeVerifier{}, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{50, 100}, {50, 150}}, fetcher.calls)
	assert.Equal(t, 200, result.FinalOffset)
	assert.Equal(t, StateDone, result.State)
}

func TestRun_FetchFailureReportsOffset(t *testing.T) {
	fetcher := &fakeFetcher{err: &types.RateLimitError{Attempts: 2}}
	cfg := testProcessing(50, 150)
	cfg.StartOffset = 50

	result, err := newTestOrchestrator(fetcher, &fakeLoader{}, &fakeVerifier{}, cfg).Run(context.Background())
	require.Error(t, err)

	var stageErr *types.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "fetch", stageErr.Stage)
	assert.Equal(t, 50, stageErr.Offset)

	var rateErr *types.RateLimitError
	assert.ErrorAs(t, err, &rateErr)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 0, result.RecordsFetched)
}

func TestRun_CleanLoadFailure(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(30)}
	ld := &fakeLoader{loadErr: map[loader.Sink]error{
		loader.SinkClean: &types.LoadError{Sink: "clean", Cause: assert.AnError},
	}}

	result, err := newTestOrchestrator(fetcher, ld, &fakeVerifier{}, testProcessing(50, 150)).Run(context.Background())
	require.Error(t, err)

	var stageErr *types.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "load_clean", stageErr.Stage)
	assert.Equal(t, 0, stageErr.Offset)
	assert.Equal(t, StateFailed, result.State)
}

func TestRun_VerifyFailure(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(30)}
	vf := &fakeVerifier{err: fmt.Errorf("batch verification failed: 29 rows landed, expected 30")}

	_, err := newTestOrchestrator(fetcher, &fakeLoader{}, vf, testProcessing(50, 150)).Run(context.Background())
	require.Error(t, err)

	var stageErr *types.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "verify", stageErr.Stage)
}

func TestRun_ReadBackPath(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(30)}
	ld := &fakeLoader{}
	cfg := testProcessing(50, 150)
	cfg.ReadBack = true

	result, err := newTestOrchestrator(fetcher, ld, &fakeVerifier{}, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, ld.readBackUsed)
	assert.Equal(t, 30, result.CleanRowsLoaded)
}

func TestRun_DuplicatesDroppedFromCleanOnly(t *testing.T) {
	rec := types.Record{"case_month": "2021-03", "res_state": "NY"}
	fetcher := &fakeFetcher{records: []types.Record{rec, rec, rec}}
	ld := &fakeLoader{}

	result, err := newTestOrchestrator(fetcher, ld, &fakeVerifier{}, testProcessing(50, 150)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.RawRowsLoaded)
	assert.Equal(t, 1, result.CleanRowsLoaded)
	// The offset advances by fetched records, not deduplicated ones.
	assert.Equal(t, 3, result.FinalOffset)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{records: makeRecords(30)}
	_, err := newTestOrchestrator(fetcher, &fakeLoader{}, &fakeVerifier{}, testProcessing(50, 150)).Run(ctx)
	require.Error(t, err)

	var stageErr *types.StageError
	assert.ErrorAs(t, err, &stageErr)
}

type recordingCheckpointer struct {
	checkpoints [][2]int
}

func (r *recordingCheckpointer) Checkpoint(ctx context.Context, runID int64, offset, fetched int) error {
	r.checkpoints = append(r.checkpoints, [2]int{offset, fetched})
	return nil
}

func TestRun_CheckpointsPerPage(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(100)}
	cp := &recordingCheckpointer{}

	orch := newTestOrchestrator(fetcher, &fakeLoader{}, &fakeVerifier{}, testProcessing(50, 100)).
		WithCheckpointer(cp, 7)

	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{50, 50}, {100, 100}}, cp.checkpoints)
}

type failingCheckpointer struct{}

func (failingCheckpointer) Checkpoint(ctx context.Context, runID int64, offset, fetched int) error {
	return assert.AnError
}

func TestRun_CheckpointFailureDoesNotStopRun(t *testing.T) {
	fetcher := &fakeFetcher{records: makeRecords(60)}

	orch := newTestOrchestrator(fetcher, &fakeLoader{}, &fakeVerifier{}, testProcessing(50, 60)).
		WithCheckpointer(failingCheckpointer{}, 1)

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
}
