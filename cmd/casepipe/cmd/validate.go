package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/database"
	"github.com/epidata/casepipe/internal/loader"
	"github.com/epidata/casepipe/internal/logger"
)

var validateSkipDB bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the sink to ensure safe execution.

Checks performed:
  - Configuration syntax and required fields
  - Sink connectivity
  - Sink table existence and column sets

Example:
  casepipe validate --config casepipe.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateSkipDB, "skip-db", false,
		"Validate configuration only, without connecting to the sink")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Fprintln(outputWriter, "✓ Configuration valid")

	if validateSkipDB {
		return nil
	}

	// Initialize logger
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbManager := database.NewManager(&cfg.Sink, log)
	if err := dbManager.Connect(ctx); err != nil {
		return err
	}
	defer dbManager.Close()
	fmt.Fprintln(outputWriter, "✓ Sink reachable")

	sinkLoader := loader.New(dbManager.DB(), &cfg.Sink, log)
	for _, sink := range []loader.Sink{loader.SinkRaw, loader.SinkClean} {
		if err := sinkLoader.EnsureTable(ctx, sink); err != nil {
			return fmt.Errorf("table check failed: %w", err)
		}
		fmt.Fprintf(outputWriter, "✓ Table %s ready\n", sinkLoader.Table(sink))
	}

	return nil
}
