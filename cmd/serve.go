package cmd

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/repometrics/github-report/internal/config"
	"github.com/repometrics/github-report/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the report generator as an HTTP service",
	Long: `Starts an HTTP server exposing the report pipeline. POST /api/report
with {"repo_name": "owner/repo", "days": 30, "github_token": "..."} returns
the aggregated report as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.InheritedFlags().GetBool("verbose")
		logger := newLogger(verbose, zapcore.InfoLevel)
		defer func() { _ = logger.Sync() }()

		configPath, _ := cmd.InheritedFlags().GetString("config")
		cfg := config.Load(configPath, logger)

		addr, _ := cmd.Flags().GetString("addr")
		router, err := server.NewRouter(cfg.InitiativePatterns, logger)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("starting HTTP server", zap.String("addr", addr))
		return srv.ListenAndServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address for the HTTP server")
}
