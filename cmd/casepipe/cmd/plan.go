package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/epidata/casepipe/internal/config"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the page schedule for a run without fetching anything",
	Long: `Plan computes the page schedule a run would follow from the effective
configuration and prints it without touching the source API or the sink.

The plan shows:
  - Every page the run would request, with its limit and offset
  - The effective processing configuration after CLI overrides
  - The source endpoint and sink tables involved

Example:
  casepipe plan --config casepipe.yaml --max-records 150000`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

// pageSchedule returns the (limit, offset) pairs a run would request,
// assuming the source serves full pages up to the record ceiling.
func pageSchedule(proc *config.ProcessingConfig) [][2]int {
	var schedule [][2]int
	offset := proc.StartOffset
	fetched := 0

	for fetched < proc.MaxRecords {
		limit := proc.PageSize
		if remaining := proc.MaxRecords - fetched; remaining < limit {
			limit = remaining
		}
		schedule = append(schedule, [2]int{limit, offset})
		fetched += limit
		offset += limit
	}
	return schedule
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	printHeader("Ingestion Plan")

	fmt.Fprintln(outputWriter)
	printSection("Source")
	fmt.Fprintf(outputWriter, "  Endpoint:    %s\n", cfg.Source.URL)
	fmt.Fprintf(outputWriter, "  Timeout:     %.0fs\n", cfg.Source.TimeoutSeconds)

	fmt.Fprintln(outputWriter)
	printSection("Sink")
	fmt.Fprintf(outputWriter, "  Raw Table:   %s\n", cfg.Sink.RawTable)
	fmt.Fprintf(outputWriter, "  Clean Table: %s\n", cfg.Sink.CleanTable)

	schedule := pageSchedule(&cfg.Processing)

	fmt.Fprintln(outputWriter)
	printSection("Page Schedule (assuming full pages)")
	for i, page := range schedule {
		fmt.Fprintf(outputWriter, "  [%d] limit=%d offset=%d\n", i+1, page[0], page[1])
	}
	fmt.Fprintf(outputWriter, "  Total: up to %d records in %d pages\n",
		cfg.Processing.MaxRecords, len(schedule))

	fmt.Fprintln(outputWriter)
	printSection("Configuration")
	fmt.Fprintf(outputWriter, "  Page Size:           %d\n", cfg.Processing.PageSize)
	fmt.Fprintf(outputWriter, "  Record Ceiling:      %d\n", cfg.Processing.MaxRecords)
	fmt.Fprintf(outputWriter, "  Start Offset:        %d\n", cfg.Processing.StartOffset)
	fmt.Fprintf(outputWriter, "  Sleep Between Pages: %.1fs\n", cfg.Processing.SleepSeconds)
	fmt.Fprintf(outputWriter, "  Verification Method: %s\n", cfg.Verification.Method)
	fmt.Fprintf(outputWriter, "  Clean From Sink:     %v\n", cfg.Processing.ReadBack)

	return nil
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := len(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("-", len(title)+2))
}
