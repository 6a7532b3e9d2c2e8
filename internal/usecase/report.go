// Package usecase contains the business logic of the application.
package usecase

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/repometrics/github-report/internal/domain"
)

// ReportGenerator reduces a pull request sequence plus auxiliary contributor
// and language data into a RepositoryReport. It holds no external resource
// and never errors on missing optional data: absence is treated as empty.
type ReportGenerator struct {
	patterns map[string]*regexp.Regexp
	logger   *zap.Logger
	now      func() time.Time
}

// NewReportGenerator compiles the initiative patterns (initiative name to a
// regular expression matched case-insensitively against the start of the PR
// branch name) and returns a generator. Patterns are an explicit parameter;
// there is no implicit config lookup here.
func NewReportGenerator(patterns map[string]string, logger *zap.Logger) (*ReportGenerator, error) {
	compiled := make(map[string]*regexp.Regexp, len(patterns))
	for name, expr := range patterns {
		re, err := regexp.Compile("(?i)^(?:" + expr + ")")
		if err != nil {
			return nil, fmt.Errorf("invalid initiative pattern %q: %w", name, err)
		}
		compiled[name] = re
	}
	return &ReportGenerator{
		patterns: compiled,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Generate performs the single-pass reduction and returns an immutable
// report. SizeCategory and Initiatives are filled in on the PRs during the
// pass and not mutated again. Running Generate twice over the same inputs
// yields identical reports except for GeneratedAt.
func (g *ReportGenerator) Generate(
	repoName string,
	prs []*domain.PullRequest,
	periodStart, periodEnd time.Time,
	contributorStats map[string]*domain.ContributorStats,
	languages map[string]int,
) *domain.RepositoryReport {
	report := &domain.RepositoryReport{
		RepoName:           repoName,
		PeriodStart:        periodStart,
		PeriodEnd:          periodEnd,
		GeneratedAt:        g.now().UTC(),
		PRs:                prs,
		Languages:          languages,
		PRSizeDistribution: map[string]int{"xs": 0, "s": 0, "m": 0, "l": 0, "xl": 0},
		Contributors:       make(map[string]*domain.ContributorStats),
		Initiatives:        make(map[string]*domain.InitiativeStats),
	}

	g.processPRs(report, prs)
	g.mergeContributorStats(report, contributorStats)
	g.calculateMetrics(report)

	report.WeeklyMetrics = CalculateWeeklyMetrics(prs)
	applyVelocityMetrics(report)

	g.generateHighlights(report)
	return report
}

func (g *ReportGenerator) processPRs(report *domain.RepositoryReport, prs []*domain.PullRequest) {
	for _, pr := range prs {
		pr.SizeCategory = domain.CategorizeSize(pr.Additions + pr.Deletions)
		report.PRSizeDistribution[pr.SizeCategory]++

		switch pr.State {
		case domain.StateMerged:
			report.PRsMerged++
		case domain.StateOpen:
			report.PRsOpen++
		case domain.StateClosed:
			report.PRsClosed++
		}

		g.updateContributorStats(report, pr)
		g.mapInitiatives(report, pr)

		if pr.State == domain.StateMerged && pr.MergedAt != nil {
			// Lead and cycle time are both creation-to-merge; keeping them
			// as separate samples is a product decision, not an accident.
			hours := pr.MergedAt.Sub(pr.CreatedAt).Hours()
			cs := report.Contributors[pr.Author]
			cs.LeadTimes = append(cs.LeadTimes, hours)
			cs.CycleTimes = append(cs.CycleTimes, hours)
		}
	}
}

func (g *ReportGenerator) updateContributorStats(report *domain.RepositoryReport, pr *domain.PullRequest) {
	author := ensureContributor(report, pr.Author)
	author.PRsAuthored++
	if pr.State == domain.StateMerged {
		author.PRsMerged++
	}

	for _, reviewer := range pr.Reviewers {
		ensureContributor(report, reviewer).ReviewsGiven++
		// Each distinct reviewer counts once toward the author's received
		// total: three reviewers add three, not one.
		author.ReviewsReceived++
	}
}

func ensureContributor(report *domain.RepositoryReport, login string) *domain.ContributorStats {
	cs, ok := report.Contributors[login]
	if !ok {
		cs = &domain.ContributorStats{Login: login}
		report.Contributors[login] = cs
	}
	return cs
}

// mapInitiatives classifies the PR's branch name against every configured
// pattern. A branch may match multiple initiatives.
func (g *ReportGenerator) mapInitiatives(report *domain.RepositoryReport, pr *domain.PullRequest) {
	if len(g.patterns) == 0 {
		return
	}

	branch := strings.ToLower(pr.Branch)
	var matched []string
	for name, re := range g.patterns {
		if !re.MatchString(branch) {
			continue
		}
		matched = append(matched, name)

		is, ok := report.Initiatives[name]
		if !ok {
			is = &domain.InitiativeStats{Name: name, Contributors: make(map[string]int)}
			report.Initiatives[name] = is
		}
		is.PRCount++
		is.Contributors[pr.Author]++
	}

	sort.Strings(matched)
	pr.Initiatives = matched
}

// mergeContributorStats folds the externally supplied commit statistics into
// the accumulators built during the PR pass. PR-derived additive fields are
// preserved; commit counters are overwritten since the statistics endpoint
// is the authoritative source for them.
func (g *ReportGenerator) mergeContributorStats(report *domain.RepositoryReport, contributorStats map[string]*domain.ContributorStats) {
	for login, incoming := range contributorStats {
		existing, ok := report.Contributors[login]
		if !ok {
			report.Contributors[login] = incoming
			continue
		}
		existing.Commits = incoming.Commits
		existing.Additions = incoming.Additions
		existing.Deletions = incoming.Deletions
	}
}

func (g *ReportGenerator) calculateMetrics(report *domain.RepositoryReport) {
	report.TotalPRs = report.PRsMerged + report.PRsOpen + report.PRsClosed
	report.TotalContributors = len(report.Contributors)

	var allLeadTimes, allCycleTimes []float64
	for _, cs := range report.Contributors {
		allLeadTimes = append(allLeadTimes, cs.LeadTimes...)
		allCycleTimes = append(allCycleTimes, cs.CycleTimes...)
		report.TotalCommits += cs.Commits
	}

	var firstReviews, approvals []float64
	totalReviews := 0
	totalReviewComments := 0
	for _, pr := range report.PRs {
		if pr.ReviewMetrics.TimeToFirstReview != nil {
			firstReviews = append(firstReviews, *pr.ReviewMetrics.TimeToFirstReview)
		}
		if pr.ReviewMetrics.TimeToApproval != nil {
			approvals = append(approvals, *pr.ReviewMetrics.TimeToApproval)
		}
		totalReviews += pr.ReviewMetrics.NumberOfReviewers
		totalReviewComments += pr.ReviewMetrics.NumberOfComments
	}

	report.MedianLeadTime = medianOf(allLeadTimes)
	report.MedianCycleTime = medianOf(allCycleTimes)
	report.MedianTimeToFirstReview = medianOf(firstReviews)
	report.MedianTimeToApproval = medianOf(approvals)

	if report.TotalPRs > 0 {
		report.AvgReviewsPerPR = float64(totalReviews) / float64(report.TotalPRs)
		report.AvgReviewCommentsPerPR = float64(totalReviewComments) / float64(report.TotalPRs)
	}

	// Per-initiative plain means over the merged PRs matching the initiative.
	for _, initiative := range report.Initiatives {
		var leadTimes, cycleTimes []float64
		for _, pr := range report.PRs {
			if pr.State != domain.StateMerged || pr.MergedAt == nil {
				continue
			}
			if !slices.Contains(pr.Initiatives, initiative.Name) {
				continue
			}
			hours := pr.MergedAt.Sub(pr.CreatedAt).Hours()
			leadTimes = append(leadTimes, hours)
			cycleTimes = append(cycleTimes, hours)
		}
		initiative.AvgLeadTime = meanOf(leadTimes)
		initiative.AvgCycleTime = meanOf(cycleTimes)
	}
}

func (g *ReportGenerator) generateHighlights(report *domain.RepositoryReport) {
	highlights := []string{
		fmt.Sprintf(
			"Total of %d PRs were created in this period, with %d merged, %d still open, and %d closed without merging.",
			report.TotalPRs, report.PRsMerged, report.PRsOpen, report.PRsClosed,
		),
	}

	if report.TotalPRs > 0 {
		parts := make([]string, 0, len(domain.SizeCategories))
		for _, size := range domain.SizeCategories {
			count := report.PRSizeDistribution[size]
			if count == 0 {
				continue
			}
			pct := float64(count) / float64(report.TotalPRs) * 100
			parts = append(parts, fmt.Sprintf("%s: %.1f%%", strings.ToUpper(size), pct))
		}
		highlights = append(highlights, "PR size distribution: "+strings.Join(parts, ", "))
	}

	if report.MedianTimeToFirstReview != nil {
		highlights = append(highlights, fmt.Sprintf(
			"Median time to first review: %.1f hours", *report.MedianTimeToFirstReview))
	}
	if report.AvgReviewsPerPR > 0 {
		highlights = append(highlights, fmt.Sprintf(
			"Average reviews per PR: %.1f, with %.1f comments on average",
			report.AvgReviewsPerPR, report.AvgReviewCommentsPerPR))
	}

	if top := topContributors(report.Contributors, 3); len(top) > 0 {
		parts := make([]string, 0, len(top))
		for _, cs := range top {
			parts = append(parts, fmt.Sprintf("%s (%d PRs, %d reviews)", cs.Login, cs.PRsAuthored, cs.ReviewsGiven))
		}
		highlights = append(highlights, "Top contributors: "+strings.Join(parts, ", "))
	}

	if report.MedianLeadTime != nil {
		highlights = append(highlights, fmt.Sprintf(
			"Median lead time (first commit to merge): %.1f hours", *report.MedianLeadTime))
	}
	if report.MedianCycleTime != nil {
		highlights = append(highlights, fmt.Sprintf(
			"Median cycle time (PR open to merge): %.1f hours", *report.MedianCycleTime))
	}

	if top := topInitiatives(report.Initiatives, 3); len(top) > 0 {
		parts := make([]string, 0, len(top))
		for _, is := range top {
			if is.AvgCycleTime == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s (%d PRs, %.1fh avg cycle)", is.Name, is.PRCount, *is.AvgCycleTime))
		}
		if len(parts) > 0 {
			highlights = append(highlights, "Top initiatives: "+strings.Join(parts, ", "))
		}
	}

	if fastest, slowest, ok := initiativeSpread(report.Initiatives); ok {
		highlights = append(highlights, fmt.Sprintf(
			"The %s initiative has notably faster cycle times (%.1fh vs %.1fh for %s)",
			fastest.Name, *fastest.AvgCycleTime, *slowest.AvgCycleTime, slowest.Name))
	}

	report.Highlights = highlights
}

// topContributors ranks by authored plus reviews given, ties broken by login
// so the ordering is deterministic.
func topContributors(contributors map[string]*domain.ContributorStats, n int) []*domain.ContributorStats {
	ranked := make([]*domain.ContributorStats, 0, len(contributors))
	for _, cs := range contributors {
		ranked = append(ranked, cs)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si := ranked[i].PRsAuthored + ranked[i].ReviewsGiven
		sj := ranked[j].PRsAuthored + ranked[j].ReviewsGiven
		if si != sj {
			return si > sj
		}
		return ranked[i].Login < ranked[j].Login
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// topInitiatives ranks by PR count plus a bonus for fast cycle times,
// 100/(avg_cycle_time+1), ties broken by name.
func topInitiatives(initiatives map[string]*domain.InitiativeStats, n int) []*domain.InitiativeStats {
	score := func(is *domain.InitiativeStats) float64 {
		s := float64(is.PRCount)
		if is.AvgCycleTime != nil {
			s += 100 / (*is.AvgCycleTime + 1)
		}
		return s
	}
	ranked := make([]*domain.InitiativeStats, 0, len(initiatives))
	for _, is := range initiatives {
		ranked = append(ranked, is)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// initiativeSpread reports the fastest and slowest initiatives among those
// with at least 3 PRs, when the fastest is at least twice as fast. Ties on
// the average go to the lexicographically smaller name so the selection does
// not depend on map iteration order.
func initiativeSpread(initiatives map[string]*domain.InitiativeStats) (fastest, slowest *domain.InitiativeStats, ok bool) {
	for _, is := range initiatives {
		if is.AvgCycleTime == nil || is.PRCount < 3 {
			continue
		}
		if fastest == nil || *is.AvgCycleTime < *fastest.AvgCycleTime ||
			(*is.AvgCycleTime == *fastest.AvgCycleTime && is.Name < fastest.Name) {
			fastest = is
		}
		if slowest == nil || *is.AvgCycleTime > *slowest.AvgCycleTime ||
			(*is.AvgCycleTime == *slowest.AvgCycleTime && is.Name < slowest.Name) {
			slowest = is
		}
	}
	if fastest == nil || slowest == nil || fastest == slowest {
		return nil, nil, false
	}
	if *fastest.AvgCycleTime >= *slowest.AvgCycleTime*0.5 {
		return nil, nil, false
	}
	return fastest, slowest, true
}

// medianOf returns the median of the samples, or nil for an empty sample.
// The median of an empty sample is absent, never zero.
func medianOf(samples []float64) *float64 {
	m, err := stats.Median(samples)
	if err != nil {
		return nil
	}
	return &m
}

// meanOf returns the arithmetic mean of the samples, or nil for an empty
// sample.
func meanOf(samples []float64) *float64 {
	m, err := stats.Mean(samples)
	if err != nil {
		return nil
	}
	return &m
}
