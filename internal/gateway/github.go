package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/repometrics/github-report/internal/domain"
)

const (
	// prPageSize is the fixed page size for the pull request listing.
	prPageSize = 30

	// statsMaxRetries and statsRetryDelay govern the "statistics still being
	// computed" retry loop for the contributor stats endpoint.
	statsMaxRetries = 3
	statsRetryDelay = 2 * time.Second
)

// Fetcher defines the behavior of a gateway for fetching repository data
// from GitHub. Contributor stats and languages are optional inputs to the
// report: their fetch methods downgrade failures to empty results.
type Fetcher interface {
	FetchPullRequests(ctx context.Context, repo string, start, end time.Time) ([]*domain.PullRequest, error)
	FetchContributorStats(ctx context.Context, repo string) map[string]*domain.ContributorStats
	FetchLanguages(ctx context.Context, repo string) map[string]int
}

// GitHubGateway is the concrete implementation of the Fetcher interface,
// built on the rate-limited Client.
type GitHubGateway struct {
	client *Client
	logger *zap.Logger
	sleep  func(time.Duration)
}

// NewGitHubGateway creates a gateway around an existing client.
func NewGitHubGateway(client *Client, logger *zap.Logger) *GitHubGateway {
	return &GitHubGateway{
		client: client,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Wire types for the GitHub REST payloads. Only the fields we consume.

type userRef struct {
	Login string `json:"login"`
}

type prListItem struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	URL       string     `json:"url"`
	User      *userRef   `json:"user"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	MergedAt  *time.Time `json:"merged_at"`
	Head      struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

type prDetail struct {
	Additions      int `json:"additions"`
	Deletions      int `json:"deletions"`
	ChangedFiles   int `json:"changed_files"`
	Comments       int `json:"comments"`
	ReviewComments int `json:"review_comments"`
	Commits        int `json:"commits"`
}

type prReview struct {
	User        *userRef   `json:"user"`
	State       string     `json:"state"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

type contributorEntry struct {
	Author *userRef `json:"author"`
	Total  int      `json:"total"`
	Weeks  []struct {
		Additions int `json:"a"`
		Deletions int `json:"d"`
	} `json:"weeks"`
}

// FetchPullRequests produces normalized pull request records for the given
// window, page by page (sorted by last update, descending). Records outside
// the window by update timestamp are filtered out; the scan stops on a short
// page or once a whole page has aged out of the window.
func (g *GitHubGateway) FetchPullRequests(ctx context.Context, repo string, start, end time.Time) ([]*domain.PullRequest, error) {
	g.logger.Info("fetching pull requests", zap.String("repo", repo))

	prs := make([]*domain.PullRequest, 0, prPageSize)
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("state", "all")
		params.Set("sort", "updated")
		params.Set("direction", "desc")
		params.Set("per_page", strconv.Itoa(prPageSize))
		params.Set("page", strconv.Itoa(page))

		data, err := g.client.Request(ctx, http.MethodGet, fmt.Sprintf("repos/%s/pulls", repo), params)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pull requests for %s: %w", repo, err)
		}

		var items []prListItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, &MalformedResponseError{URL: fmt.Sprintf("repos/%s/pulls", repo), Err: err}
		}
		if len(items) == 0 {
			break
		}

		inWindow := 0
		for _, item := range items {
			if item.UpdatedAt.Before(start) || item.UpdatedAt.After(end) {
				continue
			}
			inWindow++
			prs = append(prs, g.normalizePR(ctx, item))
		}

		if len(items) < prPageSize {
			break
		}
		// Pages are sorted by update descending: once a full page sits
		// entirely before the window start, no later page can qualify.
		if inWindow == 0 && items[len(items)-1].UpdatedAt.Before(start) {
			break
		}
		g.logger.Debug("fetching next page of pull requests", zap.Int("page", page+1))
	}

	g.logger.Info("completed fetching pull requests", zap.Int("count", len(prs)))
	return prs, nil
}

// normalizePR augments a listing item with its diff statistics and reviews,
// fetched as a single batch to amortize round trips, and derives review
// latency metrics. Missing detail or review payloads degrade to zero values.
func (g *GitHubGateway) normalizePR(ctx context.Context, item prListItem) *domain.PullRequest {
	reviewsURL := item.URL + "/reviews"
	batch := g.client.BatchFetch(ctx, []string{item.URL, reviewsURL})

	var detail prDetail
	if raw := batch[item.URL]; raw != nil {
		if err := json.Unmarshal(raw, &detail); err != nil {
			g.logger.Warn("could not decode pull request detail", zap.String("url", item.URL), zap.Error(err))
		}
	}
	var reviews []prReview
	if raw := batch[reviewsURL]; raw != nil {
		if err := json.Unmarshal(raw, &reviews); err != nil {
			g.logger.Warn("could not decode pull request reviews", zap.String("url", reviewsURL), zap.Error(err))
		}
	}

	author := "unknown"
	if item.User != nil {
		author = item.User.Login
	}

	state := domain.PullRequestState(strings.ToLower(item.State))
	if item.MergedAt != nil {
		// The list payload reports merged PRs as closed.
		state = domain.StateMerged
	}

	seen := make(map[string]struct{}, len(reviews))
	reviewers := make([]string, 0, len(reviews))
	var firstReview, firstApproval *time.Time
	for _, r := range reviews {
		if r.User != nil {
			if _, ok := seen[r.User.Login]; !ok {
				seen[r.User.Login] = struct{}{}
				reviewers = append(reviewers, r.User.Login)
			}
		}
		if r.SubmittedAt == nil {
			continue
		}
		if firstReview == nil || r.SubmittedAt.Before(*firstReview) {
			firstReview = r.SubmittedAt
		}
		if r.State == "APPROVED" && (firstApproval == nil || r.SubmittedAt.Before(*firstApproval)) {
			firstApproval = r.SubmittedAt
		}
	}

	metrics := domain.ReviewMetrics{
		NumberOfReviewers: len(reviewers),
		NumberOfComments:  detail.ReviewComments,
	}
	if firstReview != nil {
		h := firstReview.Sub(item.CreatedAt).Hours()
		metrics.TimeToFirstReview = &h
	}
	if firstApproval != nil {
		h := firstApproval.Sub(item.CreatedAt).Hours()
		metrics.TimeToApproval = &h
	}

	labels := make([]string, 0, len(item.Labels))
	for _, l := range item.Labels {
		labels = append(labels, l.Name)
	}

	return &domain.PullRequest{
		Number:         item.Number,
		Title:          item.Title,
		State:          state,
		Author:         author,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
		ClosedAt:       item.ClosedAt,
		MergedAt:       item.MergedAt,
		Additions:      detail.Additions,
		Deletions:      detail.Deletions,
		ChangedFiles:   detail.ChangedFiles,
		Comments:       detail.Comments,
		ReviewComments: detail.ReviewComments,
		Commits:        detail.Commits,
		Branch:         item.Head.Ref,
		Labels:         labels,
		Reviewers:      reviewers,
		ReviewMetrics:  metrics,
	}
}

// FetchContributorStats fetches per-login commit/addition/deletion totals.
// The server may answer "still computing" (an empty payload); that case is
// retried after a short delay. Any terminal failure is downgraded to an
// empty map so the report proceeds without commit totals.
func (g *GitHubGateway) FetchContributorStats(ctx context.Context, repo string) map[string]*domain.ContributorStats {
	g.logger.Info("fetching contributor stats", zap.String("repo", repo))
	path := fmt.Sprintf("repos/%s/stats/contributors", repo)

	stats := make(map[string]*domain.ContributorStats)
	var entries []contributorEntry
	for tries := 0; ; tries++ {
		data, err := g.client.Request(ctx, http.MethodGet, path, nil)
		if err != nil {
			g.logger.Warn("error fetching contributor stats, proceeding without them", zap.Error(err))
			return stats
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			g.logger.Warn("could not decode contributor stats, proceeding without them", zap.Error(err))
			return stats
		}
		if len(entries) > 0 || tries >= statsMaxRetries {
			break
		}
		g.logger.Debug("contributor stats still being computed, retrying")
		g.sleep(statsRetryDelay)
	}

	for _, entry := range entries {
		if entry.Author == nil {
			continue
		}
		cs := &domain.ContributorStats{
			Login:   entry.Author.Login,
			Commits: entry.Total,
		}
		for _, week := range entry.Weeks {
			cs.Additions += week.Additions
			cs.Deletions += week.Deletions
		}
		stats[entry.Author.Login] = cs
	}
	return stats
}

// FetchLanguages fetches the repository's language byte counts. Failures
// are downgraded to an empty map.
func (g *GitHubGateway) FetchLanguages(ctx context.Context, repo string) map[string]int {
	g.logger.Info("fetching repository languages", zap.String("repo", repo))

	data, err := g.client.Request(ctx, http.MethodGet, fmt.Sprintf("repos/%s/languages", repo), nil)
	if err != nil {
		g.logger.Warn("error fetching repository languages, proceeding without them", zap.Error(err))
		return map[string]int{}
	}
	languages := make(map[string]int)
	if err := json.Unmarshal(data, &languages); err != nil {
		g.logger.Warn("could not decode repository languages, proceeding without them", zap.Error(err))
		return map[string]int{}
	}
	return languages
}
