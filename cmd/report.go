package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/repometrics/github-report/internal/config"
	"github.com/repometrics/github-report/internal/format"
	"github.com/repometrics/github-report/internal/gateway"
	"github.com/repometrics/github-report/internal/usecase"
)

var reportCmd = &cobra.Command{
	Use:   "report <owner/repo>",
	Short: "Generates a repository contribution report",
	Long: `Fetches pull request, contributor and language data for the given
repository over a date window and renders the aggregated report as JSON or
console output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := args[0]

		verbose, _ := cmd.InheritedFlags().GetBool("verbose")
		logger := newLogger(verbose, zapcore.WarnLevel)
		defer func() { _ = logger.Sync() }()

		configPath, _ := cmd.InheritedFlags().GetString("config")
		cfg := config.Load(configPath, logger)

		days, _ := cmd.Flags().GetInt("days")
		month, _ := cmd.Flags().GetInt("month")
		year, _ := cmd.Flags().GetInt("year")
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			fmt.Fprintln(os.Stderr, "WARNING: GITHUB_TOKEN is not set; proceeding unauthenticated at a lower rate-limit ceiling.")
		}

		start, end, err := dateRange(days, month, year, time.Now())
		if err != nil {
			return err
		}

		client := gateway.NewClient(token, logger)
		fetcher := gateway.NewGitHubGateway(client, logger)
		generator, err := usecase.NewReportGenerator(cfg.InitiativePatterns, logger)
		if err != nil {
			return err
		}
		service := usecase.NewReportService(fetcher, generator, logger)

		report, err := service.GenerateReport(cmd.Context(), repo, start, end)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}

		rendered, err := format.Render(report, formatName)
		if err != nil {
			return err
		}

		if output == "" {
			fmt.Println(rendered)
			return nil
		}
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		if err := os.WriteFile(output, []byte(rendered), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Int("days", 0, "Number of days to look back (alternative to --month/--year)")
	reportCmd.Flags().Int("month", 0, "Month to generate the report for (1-12, defaults to the current month)")
	reportCmd.Flags().Int("year", 0, "Year to generate the report for (defaults to the current year)")
	reportCmd.Flags().String("format", format.FormatJSON, "Output format: json or console")
	reportCmd.Flags().String("output", "", "Output file path (prints to stdout when empty)")
}

// dateRange computes the reporting window: the last N days when --days is
// given, otherwise the named calendar month.
func dateRange(days, month, year int, now time.Time) (time.Time, time.Time, error) {
	if days > 0 {
		return now.AddDate(0, 0, -days), now, nil
	}
	if month == 0 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %d: must be 1-12", month)
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}
