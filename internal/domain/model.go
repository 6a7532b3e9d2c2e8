// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// PullRequestState is the lifecycle state of a pull request.
type PullRequestState string

const (
	StateOpen   PullRequestState = "open"
	StateClosed PullRequestState = "closed"
	StateMerged PullRequestState = "merged"
)

// ReviewMetrics holds review latency data derived for a single pull request.
// Durations are in hours; nil means the sample does not exist.
type ReviewMetrics struct {
	TimeToFirstReview *float64 `json:"time_to_first_review,omitempty"`
	TimeToApproval    *float64 `json:"time_to_approval,omitempty"`
	NumberOfReviewers int      `json:"number_of_reviewers"`
	NumberOfComments  int      `json:"number_of_comments"`
}

// PullRequest is a normalized pull request record as produced by the gateway.
// SizeCategory and Initiatives are filled in by the report generator during
// its single pass and are never mutated afterwards.
type PullRequest struct {
	Number         int              `json:"number"`
	Title          string           `json:"title"`
	State          PullRequestState `json:"state"`
	Author         string           `json:"author"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
	MergedAt       *time.Time       `json:"merged_at,omitempty"`
	Additions      int              `json:"additions"`
	Deletions      int              `json:"deletions"`
	ChangedFiles   int              `json:"changed_files"`
	Comments       int              `json:"comments"`
	ReviewComments int              `json:"review_comments"`
	Commits        int              `json:"commits"`
	Branch         string           `json:"branch"`
	Labels         []string         `json:"labels,omitempty"`
	Reviewers      []string         `json:"reviewers,omitempty"`
	Initiatives    []string         `json:"initiatives,omitempty"`
	ReviewMetrics  ReviewMetrics    `json:"review_metrics"`
	SizeCategory   string           `json:"size_category"`
}

// ContributorStats accumulates per-login activity.
// Commits, Additions and Deletions come from the repository statistics
// endpoint and overwrite rather than sum with PR-derived counters.
type ContributorStats struct {
	Login           string    `json:"login"`
	Commits         int       `json:"commits"`
	Additions       int       `json:"additions"`
	Deletions       int       `json:"deletions"`
	PRsAuthored     int       `json:"prs_authored"`
	PRsMerged       int       `json:"prs_merged"`
	ReviewsGiven    int       `json:"reviews_given"`
	ReviewsReceived int       `json:"reviews_received"`
	LeadTimes       []float64 `json:"lead_times,omitempty"`
	CycleTimes      []float64 `json:"cycle_times,omitempty"`
}

// InitiativeStats accumulates per-initiative activity. Initiatives are
// derived from branch-name pattern matches.
type InitiativeStats struct {
	Name         string         `json:"name"`
	PRCount      int            `json:"pr_count"`
	AvgLeadTime  *float64       `json:"avg_lead_time,omitempty"`
	AvgCycleTime *float64       `json:"avg_cycle_time,omitempty"`
	Contributors map[string]int `json:"contributors"`
}

// WeeklyMetrics is one entry per ISO calendar week containing at least one
// merged pull request. WeekStart is the Monday of the ISO week at 00:00 UTC.
// Trend fields compare against the chronologically previous present entry.
type WeeklyMetrics struct {
	WeekStart          time.Time `json:"week_start"`
	CompletedPRs       int       `json:"completed_prs"`
	CompletedChanges   int       `json:"completed_changes"`
	AvgReviewTime      *float64  `json:"avg_review_time,omitempty"`
	AvgCycleTime       *float64  `json:"avg_cycle_time,omitempty"`
	ActiveContributors int       `json:"active_contributors"`
	TotalReviews       int       `json:"total_reviews"`
	TotalComments      int       `json:"total_comments"`
	ThroughputTrend    *float64  `json:"throughput_trend,omitempty"`
	CycleTimeTrend     *float64  `json:"cycle_time_trend,omitempty"`
}

// RepositoryReport is the sole output of the aggregation and is immutable
// once returned. Invariants:
//
//	TotalPRs == PRsMerged + PRsOpen + PRsClosed
//	sum(PRSizeDistribution) == TotalPRs
//	every login referenced by a PR or a review has a Contributors entry
type RepositoryReport struct {
	RepoName    string    `json:"repo_name"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	GeneratedAt time.Time `json:"generated_at"`

	TotalCommits      int            `json:"total_commits"`
	TotalPRs          int            `json:"total_prs"`
	TotalContributors int            `json:"total_contributors"`
	Languages         map[string]int `json:"languages,omitempty"`

	PRsMerged       int            `json:"prs_merged"`
	PRsOpen         int            `json:"prs_open"`
	PRsClosed       int            `json:"prs_closed"`
	PRs             []*PullRequest `json:"prs"`
	MedianLeadTime  *float64       `json:"median_lead_time,omitempty"`
	MedianCycleTime *float64       `json:"median_cycle_time,omitempty"`

	MedianTimeToFirstReview *float64 `json:"median_time_to_first_review,omitempty"`
	MedianTimeToApproval    *float64 `json:"median_time_to_approval,omitempty"`
	AvgReviewsPerPR         float64  `json:"avg_reviews_per_pr"`
	AvgReviewCommentsPerPR  float64  `json:"avg_review_comments_per_pr"`

	PRSizeDistribution map[string]int `json:"pr_size_distribution"`

	Contributors map[string]*ContributorStats `json:"contributors"`
	Initiatives  map[string]*InitiativeStats  `json:"initiatives"`

	WeeklyMetrics []WeeklyMetrics `json:"weekly_metrics"`

	AvgThroughput   *float64 `json:"avg_throughput,omitempty"`
	MaxThroughput   *float64 `json:"max_throughput,omitempty"`
	MinThroughput   *float64 `json:"min_throughput,omitempty"`
	ThroughputTrend *float64 `json:"throughput_trend,omitempty"`
	AvgCycleTime    *float64 `json:"avg_cycle_time,omitempty"`
	MaxCycleTime    *float64 `json:"max_cycle_time,omitempty"`
	MinCycleTime    *float64 `json:"min_cycle_time,omitempty"`
	CycleTimeTrend  *float64 `json:"cycle_time_trend,omitempty"`

	Highlights []string `json:"highlights"`
}

// SizeCategories is the ordered set of PR size buckets.
var SizeCategories = []string{"xs", "s", "m", "l", "xl"}

// CategorizeSize buckets a change volume (additions + deletions) into one of
// the size categories.
func CategorizeSize(totalChanges int) string {
	switch {
	case totalChanges <= 10:
		return "xs"
	case totalChanges <= 50:
		return "s"
	case totalChanges <= 250:
		return "m"
	case totalChanges <= 1000:
		return "l"
	default:
		return "xl"
	}
}
