// Package gateway provides a gateway to the GitHub REST API, built on a
// rate-limit-aware client with retry, backoff and response memoization.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "github-report-generator"

	// lowQuotaMark is the remaining-request threshold below which a warning
	// is emitted after every exchange.
	lowQuotaMark = 100

	// batchConcurrency bounds the number of in-flight requests per BatchFetch.
	batchConcurrency = 4
)

// retryPolicy holds the retry budget and backoff schedule for a client.
type retryPolicy struct {
	maxRetries int
}

// backoff is the transport-failure schedule: 2^attempt seconds, where
// attempt counts retries starting at 1.
func (p retryPolicy) backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// rateLimitWait picks the sleep before re-trying a rate-limited request:
// min(reset_seconds+1, 2^attempt*5) seconds, attempt counting from 0.
func (p retryPolicy) rateLimitWait(resetSeconds int64, attempt int) time.Duration {
	wait := resetSeconds + 1
	if capped := int64(1<<attempt) * 5; capped < wait {
		wait = capped
	}
	return time.Duration(wait) * time.Second
}

// responseCache memoizes successful responses for the lifetime of a client.
// It is append-only: entries never expire and are never evicted. Concurrent
// writers for the same key compute the same value, so last-writer-wins is
// safe under a single lock.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

func newResponseCache() *responseCache {
	return &responseCache{entries: make(map[string]json.RawMessage)}
}

func (rc *responseCache) get(key string) (json.RawMessage, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	data, ok := rc.entries[key]
	return data, ok
}

func (rc *responseCache) set(key string, data json.RawMessage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[key] = data
}

// Client turns the paginated, rate-limited, occasionally flaky GitHub API
// into a reliable synchronous call surface. The retry policy and the cache
// are composed explicitly at construction time so each concern is testable
// on its own. A Client owns its cache and HTTP session for its lifetime.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retryPolicy
	cache      *responseCache
	logger     *zap.Logger

	// sleep and now are injectable for tests.
	sleep func(time.Duration)
	now   func() time.Time
}

// NewClient creates a Client. token may be empty; unauthenticated requests
// are permitted at a lower rate-limit ceiling.
func NewClient(token string, logger *zap.Logger) *Client {
	httpClient := &http.Client{}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient.Transport = &oauth2.Transport{Source: ts}
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
		retry:      retryPolicy{maxRetries: 3},
		cache:      newResponseCache(),
		logger:     logger,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// Request issues a single HTTP request and returns the decoded JSON payload.
// Identical requests (same method, path and params) on the same Client hit
// the cache and make no network call. Transient failures are retried with
// exponential backoff; only terminal errors are surfaced, as *TransportError,
// *RateLimitError, *MalformedResponseError or an ErrNotFound wrap.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	fullURL := c.resolveURL(path, params)
	key := method + " " + fullURL

	if data, ok := c.cache.get(key); ok {
		return data, nil
	}

	for attempt := 0; ; {
		req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
		if err != nil {
			return nil, &TransportError{URL: fullURL, Err: err}
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &TransportError{URL: fullURL, Err: ctx.Err()}
			}
			if attempt < c.retry.maxRetries {
				attempt++
				c.sleep(c.retry.backoff(attempt))
				continue
			}
			return nil, &TransportError{URL: fullURL, Err: err}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt < c.retry.maxRetries {
				attempt++
				c.sleep(c.retry.backoff(attempt))
				continue
			}
			return nil, &TransportError{URL: fullURL, Err: readErr}
		}

		c.checkQuota(resp.Header)

		if resp.StatusCode == http.StatusForbidden && bytes.Contains(bytes.ToLower(body), []byte("rate limit exceeded")) {
			resetAt := resetTime(resp.Header)
			resetSeconds := int64(resetAt.Sub(c.now()) / time.Second)
			if resetSeconds > 0 && attempt < c.retry.maxRetries {
				wait := c.retry.rateLimitWait(resetSeconds, attempt)
				c.logger.Warn("rate limit exceeded, waiting for reset",
					zap.Duration("wait", wait),
					zap.Time("reset_at", resetAt))
				c.sleep(wait)
				attempt++
				continue
			}
			return nil, &RateLimitError{URL: fullURL, ResetAt: resetAt}
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, notFoundError(fullURL)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if attempt < c.retry.maxRetries {
				attempt++
				c.sleep(c.retry.backoff(attempt))
				continue
			}
			return nil, &TransportError{URL: fullURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
		}

		if len(body) == 0 {
			body = []byte("null")
		}
		if !json.Valid(body) {
			return nil, &MalformedResponseError{URL: fullURL, Err: errors.New("body is not valid JSON")}
		}

		data := json.RawMessage(body)
		// 202 means the server is still computing the resource; caching it
		// would make the caller's retry-after-delay loop a no-op.
		if resp.StatusCode == http.StatusOK {
			c.cache.set(key, data)
		}
		return data, nil
	}
}

// BatchFetch issues Request for each URL independently and returns a map of
// URL to payload. A failure on one URL is logged and recorded as nil; it
// never aborts the batch and BatchFetch itself never fails.
func (c *Client) BatchFetch(ctx context.Context, urls []string) map[string]json.RawMessage {
	results := make(map[string]json.RawMessage, len(urls))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(batchConcurrency)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			data, err := c.Request(ctx, http.MethodGet, u, nil)
			if err != nil {
				c.logger.Warn("batch fetch failed", zap.String("url", u), zap.Error(err))
				data = nil
			}
			mu.Lock()
			results[u] = data
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Client) resolveURL(path string, params url.Values) string {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		full = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	return full
}

// checkQuota inspects the rate-limit headers after every exchange and warns
// when the remaining quota drops below the low-water mark. It never blocks.
func (c *Client) checkQuota(h http.Header) {
	remainingStr := h.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return
	}
	if remaining < lowQuotaMark {
		c.logger.Warn("GitHub API rate limit is low",
			zap.Int("remaining", remaining),
			zap.Time("reset_at", resetTime(h)))
	}
}

func resetTime(h http.Header) time.Time {
	secs, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
