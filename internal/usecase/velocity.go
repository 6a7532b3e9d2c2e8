package usecase

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/repometrics/github-report/internal/domain"
)

// daysPerWeek converts weekly PR counts into a per-day throughput.
const daysPerWeek = 7.0

type weekKey struct {
	year, week int
}

type weekBucket struct {
	weekStart        time.Time
	completedPRs     int
	completedChanges int
	reviewTimes      []float64
	cycleTimes       []float64
	contributors     map[string]struct{}
	totalReviews     int
	totalComments    int
}

// CalculateWeeklyMetrics groups merged pull requests by the ISO calendar
// week of their merge timestamp and derives per-week throughput and timing
// metrics. Weeks without a merged PR are simply absent; trend fields compare
// against the chronologically previous present entry, not the wall-clock
// previous week.
func CalculateWeeklyMetrics(prs []*domain.PullRequest) []domain.WeeklyMetrics {
	buckets := make(map[weekKey]*weekBucket)

	for _, pr := range prs {
		if pr.MergedAt == nil {
			continue
		}
		year, week := pr.MergedAt.UTC().ISOWeek()
		key := weekKey{year: year, week: week}

		b, ok := buckets[key]
		if !ok {
			b = &weekBucket{
				weekStart:    mondayOf(*pr.MergedAt),
				contributors: make(map[string]struct{}),
			}
			buckets[key] = b
		}

		b.completedPRs++
		b.completedChanges += pr.Additions + pr.Deletions
		b.contributors[pr.Author] = struct{}{}
		b.totalReviews += len(pr.Reviewers)
		b.totalComments += pr.ReviewMetrics.NumberOfComments
		if pr.ReviewMetrics.TimeToApproval != nil {
			b.reviewTimes = append(b.reviewTimes, *pr.ReviewMetrics.TimeToApproval)
		}
		b.cycleTimes = append(b.cycleTimes, pr.MergedAt.Sub(pr.CreatedAt).Hours())
	}

	keys := make([]weekKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})

	result := make([]domain.WeeklyMetrics, 0, len(keys))
	var prev *domain.WeeklyMetrics
	for _, key := range keys {
		b := buckets[key]
		metrics := domain.WeeklyMetrics{
			WeekStart:          b.weekStart,
			CompletedPRs:       b.completedPRs,
			CompletedChanges:   b.completedChanges,
			AvgReviewTime:      meanOf(b.reviewTimes),
			AvgCycleTime:       meanOf(b.cycleTimes),
			ActiveContributors: len(b.contributors),
			TotalReviews:       b.totalReviews,
			TotalComments:      b.totalComments,
		}

		if prev != nil {
			trend := 0.0
			if prev.CompletedPRs > 0 {
				trend = float64(metrics.CompletedPRs-prev.CompletedPRs) / float64(prev.CompletedPRs) * 100
			}
			metrics.ThroughputTrend = &trend

			if metrics.AvgCycleTime != nil && prev.AvgCycleTime != nil {
				cycleTrend := (*metrics.AvgCycleTime - *prev.AvgCycleTime) / *prev.AvgCycleTime * 100
				metrics.CycleTimeTrend = &cycleTrend
			}
		}

		result = append(result, metrics)
		prev = &result[len(result)-1]
	}
	return result
}

// mondayOf returns the Monday of t's ISO week at 00:00 UTC.
func mondayOf(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // Monday is day 0
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// applyVelocityMetrics derives the report-level velocity rollups from the
// weekly series.
func applyVelocityMetrics(report *domain.RepositoryReport) {
	if len(report.WeeklyMetrics) == 0 {
		return
	}

	throughputs := make([]float64, 0, len(report.WeeklyMetrics))
	var cycleAvgs []float64
	for _, wm := range report.WeeklyMetrics {
		throughputs = append(throughputs, float64(wm.CompletedPRs)/daysPerWeek)
		if wm.AvgCycleTime != nil {
			cycleAvgs = append(cycleAvgs, *wm.AvgCycleTime)
		}
	}

	report.AvgThroughput = meanOf(throughputs)
	report.MaxThroughput = maxOf(throughputs)
	report.MinThroughput = minOf(throughputs)
	report.AvgCycleTime = meanOf(cycleAvgs)
	report.MaxCycleTime = maxOf(cycleAvgs)
	report.MinCycleTime = minOf(cycleAvgs)

	last := report.WeeklyMetrics[len(report.WeeklyMetrics)-1]
	report.ThroughputTrend = last.ThroughputTrend
	report.CycleTimeTrend = last.CycleTimeTrend
}

func maxOf(samples []float64) *float64 {
	m, err := stats.Max(samples)
	if err != nil {
		return nil
	}
	return &m
}

func minOf(samples []float64) *float64 {
	m, err := stats.Min(samples)
	if err != nil {
		return nil
	}
	return &m
}
