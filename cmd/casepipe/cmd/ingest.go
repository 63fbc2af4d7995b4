package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epidata/casepipe/internal/api"
	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/database"
	"github.com/epidata/casepipe/internal/ingest"
	"github.com/epidata/casepipe/internal/loader"
	"github.com/epidata/casepipe/internal/lock"
	"github.com/epidata/casepipe/internal/logger"
	"github.com/epidata/casepipe/internal/types"
	"github.com/epidata/casepipe/internal/verifier"
)

var (
	ingestJob   string
	ingestForce bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run a bounded ingestion from the source API into PostgreSQL",
	Long: `Ingest fetches pages of case records from the source API and loads
them into the sink.

Each page goes through these steps:
  1. Fetch up to page-size records at the current offset
  2. Land the page as-is in the raw table with an ingestion stamp
  3. Verify the landed row count against the fetch
  4. Clean the page (parse dates, normalize categories, drop duplicates)
  5. Append the cleaned rows to the analytic table

The run stops at the record ceiling or when the source is exhausted.
On failure the error names the stage and the offset reached; re-invoke
with --offset to resume from there.

Example:
  casepipe ingest --config casepipe.yaml --max-records 150000`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestJob, "job", "j", "covid-cases",
		"Job name used for the run lock and run history")

	ingestCmd.Flags().BoolVar(&ingestForce, "force", false,
		"Force execution even if the job lock cannot be acquired (use with caution)")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI overrides
	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.PageSize, overrides.MaxRecords,
		overrides.SleepSeconds, overrides.StartOffset, overrides.SkipVerify)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	log = log.WithJob(ingestJob)

	log.Infow("Starting ingestion run",
		"config", configFile,
		"source", cfg.Source.URL,
		"page_size", cfg.Processing.PageSize,
		"max_records", cfg.Processing.MaxRecords,
		"start_offset", cfg.Processing.StartOffset,
	)

	// Connect to the sink
	dbManager := database.NewManager(&cfg.Sink, log)

	ctx, cancel := database.SetupSignalHandler(context.Background(), log)
	defer cancel()

	if err := dbManager.Connect(ctx); err != nil {
		return err
	}
	defer dbManager.Close()

	// Acquire advisory lock to prevent concurrent runs for the same job
	if !ingestForce {
		jobLock := lock.New(dbManager.DB(), ingestJob, log)
		if err := jobLock.Acquire(ctx); err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				return fmt.Errorf("job '%s' is already running on another instance (use --force to override)", ingestJob)
			}
			return fmt.Errorf("failed to acquire job lock: %w", err)
		}
		defer jobLock.Release(context.Background())
	} else {
		log.Warnw("Skipping advisory lock acquisition (--force flag used)")
	}

	// Wire the pipeline
	client := api.NewClient(&cfg.Source, log)
	sinkLoader := loader.New(dbManager.DB(), &cfg.Sink, log)
	batchVerifier := verifier.New(dbManager.DB(), &cfg.Sink, &cfg.Verification, log)

	orch := ingest.New(client, sinkLoader, batchVerifier, &cfg.Processing, log)

	// Record run history; the run proceeds even if bookkeeping fails
	runStore := ingest.NewRunStore(dbManager.DB(), log)
	var runID int64
	if err := runStore.EnsureTable(ctx); err != nil {
		log.Warnw("run history unavailable", "error", err)
	} else if runID, err = runStore.Begin(ctx, ingestJob, cfg.Processing.StartOffset); err != nil {
		log.Warnw("failed to record run start", "error", err)
	} else {
		orch.WithCheckpointer(runStore, runID)
	}

	// Execute the run
	result, runErr := orch.Run(ctx)

	if runID != 0 {
		if err := runStore.Finish(context.Background(), runID, result.State, result.FinalOffset, result.RecordsFetched, runErr); err != nil {
			log.Warnw("failed to record run finish", "error", err)
		}
	}

	if runErr != nil {
		var stageErr *types.StageError
		if errors.As(runErr, &stageErr) {
			log.Errorw("ingestion run failed",
				"stage", stageErr.Stage,
				"offset", stageErr.Offset,
				"error", stageErr.Err,
			)
			fmt.Printf("\nRun failed in stage %q at offset %d.\n", stageErr.Stage, stageErr.Offset)
			fmt.Printf("Resume with: casepipe ingest --offset %d\n", stageErr.Offset)
		}
		return runErr
	}

	// Final row counts for the summary
	rawCount, err := sinkLoader.RowCount(ctx, loader.SinkRaw)
	if err != nil {
		log.Warnw("failed to count raw table rows", "error", err)
	}
	cleanCount, err := sinkLoader.RowCount(ctx, loader.SinkClean)
	if err != nil {
		log.Warnw("failed to count clean table rows", "error", err)
	}

	// Display results
	fmt.Printf("\n=== Ingestion Complete ===\n")
	fmt.Printf("Job: %s\n", ingestJob)
	fmt.Printf("State: %s\n", result.State)
	fmt.Printf("Duration: %s\n", result.Duration)
	fmt.Printf("Pages Fetched: %d\n", result.PagesFetched)
	fmt.Printf("Records Fetched: %d\n", result.RecordsFetched)
	fmt.Printf("Raw Rows Loaded: %d\n", result.RawRowsLoaded)
	fmt.Printf("Clean Rows Loaded: %d\n", result.CleanRowsLoaded)
	fmt.Printf("Final Offset: %d\n", result.FinalOffset)
	fmt.Printf("Raw Table Total: %d\n", rawCount)
	fmt.Printf("Clean Table Total: %d\n", cleanCount)

	return nil
}
