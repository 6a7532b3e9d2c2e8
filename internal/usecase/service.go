package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/repometrics/github-report/internal/domain"
	"github.com/repometrics/github-report/internal/gateway"
)

// ReportService orchestrates the fetch-and-aggregate pipeline. Every
// invocation produces a fresh report instance, so callers never share
// mutable report state.
type ReportService struct {
	fetcher   gateway.Fetcher
	generator *ReportGenerator
	logger    *zap.Logger
}

// NewReportService creates a new ReportService instance.
func NewReportService(fetcher gateway.Fetcher, generator *ReportGenerator, logger *zap.Logger) *ReportService {
	return &ReportService{
		fetcher:   fetcher,
		generator: generator,
		logger:    logger,
	}
}

// GenerateReport fetches the repository data concurrently and reduces it
// into a report. A pull request fetch failure is fatal; contributor stats
// and language failures have already been downgraded to empty data by the
// gateway.
func (s *ReportService) GenerateReport(ctx context.Context, repo string, start, end time.Time) (*domain.RepositoryReport, error) {
	s.logger.Info("generating report",
		zap.String("repo", repo),
		zap.Time("start", start),
		zap.Time("end", end))

	var (
		prs              []*domain.PullRequest
		contributorStats map[string]*domain.ContributorStats
		languages        map[string]int
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		prs, err = s.fetcher.FetchPullRequests(egCtx, repo, start, end)
		return err
	})

	eg.Go(func() error {
		contributorStats = s.fetcher.FetchContributorStats(egCtx, repo)
		return nil
	})

	eg.Go(func() error {
		languages = s.fetcher.FetchLanguages(egCtx, repo)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := s.generator.Generate(repo, prs, start, end, contributorStats, languages)
	s.logger.Info("report generated",
		zap.Int("total_prs", report.TotalPRs),
		zap.Int("contributors", report.TotalContributors))
	return report, nil
}

// ReportTask is a future for an in-flight report generation.
type ReportTask struct {
	done   chan struct{}
	report *domain.RepositoryReport
	err    error
}

// Done returns a channel closed when the task completes.
func (t *ReportTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completes or ctx is cancelled. Cancelling the
// wait does not cancel the underlying generation; cancel the context passed
// to GenerateReportAsync for that.
func (t *ReportTask) Wait(ctx context.Context) (*domain.RepositoryReport, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.report, t.err
	}
}

// GenerateReportAsync runs GenerateReport in the background and returns a
// task the caller can wait on. Cancelling ctx cancels in-flight requests and
// pending page fetches; a backoff sleep that has already started runs to
// completion.
func (s *ReportService) GenerateReportAsync(ctx context.Context, repo string, start, end time.Time) *ReportTask {
	task := &ReportTask{done: make(chan struct{})}
	go func() {
		defer close(task.done)
		task.report, task.err = s.GenerateReport(ctx, repo, start, end)
	}()
	return task
}
