// Package server exposes the report pipeline over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/repometrics/github-report/internal/gateway"
	"github.com/repometrics/github-report/internal/usecase"
)

const defaultReportDays = 30

type reportRequest struct {
	RepoName    string `json:"repo_name"`
	Days        int    `json:"days"`
	GitHubToken string `json:"github_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the HTTP router. initiativePatterns is the same explicit
// configuration the CLI threads into the generator.
func NewRouter(initiativePatterns map[string]string, logger *zap.Logger) (*chi.Mux, error) {
	generator, err := usecase.NewReportGenerator(initiativePatterns, logger)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/", handleRoot)
	router.Post("/api/report", handleReport(generator, logger))
	return router, nil
}

// requestLogger logs one line per completed request with the chi request ID.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":          "github-report API",
		"documentation": "POST /api/report",
	})
}

// handleReport generates a fresh report per request. Each request gets its
// own client so one caller's token and cache never leak into another's.
func handleReport(generator *usecase.ReportGenerator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, logger, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.RepoName == "" {
			writeError(w, logger, "repo_name is required", http.StatusBadRequest)
			return
		}
		days := req.Days
		if days <= 0 {
			days = defaultReportDays
		}

		client := gateway.NewClient(req.GitHubToken, logger)
		fetcher := gateway.NewGitHubGateway(client, logger)
		service := usecase.NewReportService(fetcher, generator, logger)

		end := time.Now()
		start := end.AddDate(0, 0, -days)

		task := service.GenerateReportAsync(r.Context(), req.RepoName, start, end)
		report, err := task.Wait(r.Context())
		if err != nil {
			logger.Error("report generation failed", zap.String("repo", req.RepoName), zap.Error(err))
			writeError(w, logger, err.Error(), statusFor(err))
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

// statusFor maps terminal client errors onto HTTP statuses.
func statusFor(err error) int {
	var rateLimitErr *gateway.RateLimitError
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &rateLimitErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, logger *zap.Logger, message string, status int) {
	if status >= http.StatusInternalServerError {
		logger.Error(message)
	} else {
		logger.Warn(message)
	}
	writeJSON(w, status, errorResponse{Error: message})
}
