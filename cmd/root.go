// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "github-report",
	Short: "A CLI tool to generate GitHub repository contribution reports.",
	Long: `github-report aggregates a repository's pull request, contributor and
language data over a date window into a statistical report: per-contributor
and per-initiative rollups, PR size distribution, weekly throughput and
review latency metrics.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
}

// newLogger builds the command logger. base is the level used without
// --verbose; rate-limit warnings stay visible either way.
func newLogger(verbose bool, base zapcore.Level) *zap.Logger {
	level := base
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
