package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile      string
	logLevel     string
	logFormat    string
	pageSize     int
	maxRecords   int
	sleepSeconds float64
	startOffset  int
	skipVerify   bool
)

var rootCmd = &cobra.Command{
	Use:   "casepipe",
	Short: "Batch ETL for the CDC case surveillance API",
	Long: `A CLI tool for ingesting paginated case surveillance records from the
CDC open-data API into PostgreSQL.

Each run fetches a bounded number of records page by page, lands every
page as-is in a raw table with an ingestion stamp, verifies the landing,
then cleans the page (dates parsed, categories normalized, duplicates
dropped) and appends it to the analytic table.`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "casepipe.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&pageSize, "page-size", 0,
		"Override page size (records per API request)")
	rootCmd.PersistentFlags().IntVar(&maxRecords, "max-records", 0,
		"Override record ceiling for the run")
	rootCmd.PersistentFlags().Float64Var(&sleepSeconds, "sleep", 0,
		"Override sleep seconds between pages")
	rootCmd.PersistentFlags().IntVar(&startOffset, "offset", 0,
		"Start fetching at this source offset (for resuming a failed run)")

	// Safety overrides
	rootCmd.PersistentFlags().BoolVar(&skipVerify, "skip-verify", false,
		"Skip raw landing verification after each page")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel     string
	LogFormat    string
	PageSize     int
	MaxRecords   int
	SleepSeconds float64
	StartOffset  int
	SkipVerify   bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		PageSize:     pageSize,
		MaxRecords:   maxRecords,
		SleepSeconds: sleepSeconds,
		StartOffset:  startOffset,
		SkipVerify:   skipVerify,
	}
}
