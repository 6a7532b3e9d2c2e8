package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newTestClient creates a Client pointed at the mock server, with sleeping
// stubbed out so retry tests are instantaneous. The recorded sleeps are
// returned for assertions.
func newTestClient(server *httptest.Server) (*Client, *[]time.Duration) {
	var sleeps []time.Duration
	client := NewClient("", zap.NewNop())
	client.baseURL = server.URL
	client.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	client.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return client, &sleeps
}

func TestClient_RequestCachesIdenticalRequests(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	ctx := context.Background()

	first, err := client.Request(ctx, http.MethodGet, "repos/o/r/pulls", nil)
	require.NoError(t, err)
	second, err := client.Request(ctx, http.MethodGet, "repos/o/r/pulls", nil)
	require.NoError(t, err)

	assert.JSONEq(t, `{"ok":true}`, string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "identical requests must result in exactly one network call")

	// Different params miss the cache.
	params := url.Values{}
	params.Set("page", "2")
	_, err = client.Request(ctx, http.MethodGet, "repos/o/r/pulls", params)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_RequestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"recovered":true}`)
	}))
	defer server.Close()

	client, sleeps := newTestClient(server)

	data, err := client.Request(context.Background(), http.MethodGet, "flaky", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recovered":true}`, string(data))
	assert.Equal(t, int32(3), calls.Load())
	// Exponential backoff: 2^1, 2^2 seconds.
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestClient_RequestExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, sleeps := newTestClient(server)

	_, err := client.Request(context.Background(), http.MethodGet, "broken", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, transportErr.URL, "/broken")
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *sleeps)
}

func TestClient_RequestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, sleeps := newTestClient(server)

	_, err := client.Request(context.Background(), http.MethodGet, "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)
}

func TestClient_RequestWaitsOutRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", fmt.Sprint(now.Add(5*time.Second).Unix()))
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
			return
		}
		fmt.Fprint(w, `{"restored":true}`)
	}))
	defer server.Close()

	client, sleeps := newTestClient(server)

	data, err := client.Request(context.Background(), http.MethodGet, "limited", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"restored":true}`, string(data))
	require.Len(t, *sleeps, 1)
	// min(reset_seconds+1, 2^0*5) with a reset 5 seconds out.
	assert.GreaterOrEqual(t, (*sleeps)[0], 5*time.Second)
}

func TestClient_RequestRateLimitExhaustionCarriesResetTime(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reset := now.Add(30 * time.Second)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(reset.Unix()))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)

	_, err := client.Request(context.Background(), http.MethodGet, "limited", nil)
	var rateLimitErr *RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, reset.Unix(), rateLimitErr.ResetAt.Unix())
	assert.Equal(t, int32(4), calls.Load(), "rate-limit retries share the transport retry budget")
}

func TestClient_RequestRejectsMalformedPayload(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"unterminated":`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)

	_, err := client.Request(context.Background(), http.MethodGet, "garbled", nil)
	var malformedErr *MalformedResponseError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, int32(1), calls.Load(), "malformed payloads are fatal, not retried")
}

func TestClient_RequestWarnsOnLowQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.Header().Set("X-RateLimit-Reset", "1700000100")
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	client, _ := newTestClient(server)
	client.logger = zap.New(core)

	_, err := client.Request(context.Background(), http.MethodGet, "quota", nil)
	require.NoError(t, err)

	entries := logs.FilterMessage("GitHub API rate limit is low").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].ContextMap()["remaining"])
}

func TestClient_BatchFetchIsolatesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good":
			fmt.Fprint(w, `{"value":1}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client, _ := newTestClient(server)

	goodURL := server.URL + "/good"
	badURL := server.URL + "/bad"
	results := client.BatchFetch(context.Background(), []string{goodURL, badURL})

	require.Len(t, results, 2)
	assert.JSONEq(t, `{"value":1}`, string(results[goodURL]))
	assert.Nil(t, results[badURL], "a failing URL is recorded as absent, never aborting the batch")
}

func TestClient_RequestDoesNotCacheStillComputing(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprint(w, `[{"total":3}]`)
	}))
	defer server.Close()

	client, _ := newTestClient(server)
	ctx := context.Background()

	first, err := client.Request(ctx, http.MethodGet, "repos/o/r/stats/contributors", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(first))

	second, err := client.Request(ctx, http.MethodGet, "repos/o/r/stats/contributors", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"total":3}]`, string(second))
	assert.Equal(t, int32(2), calls.Load(), "a 202 response must not be memoized")
}

func TestClient_RequestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, sleeps := newTestClient(server)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Request(ctx, http.MethodGet, "slow", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, transportErr.Err, context.Canceled)
	assert.Empty(t, *sleeps, "a cancelled context is not retried")
}

func TestResolveURL(t *testing.T) {
	client := NewClient("", zap.NewNop())

	params := url.Values{}
	params.Set("state", "all")

	testCases := []struct {
		name     string
		path     string
		params   url.Values
		expected string
	}{
		{
			name:     "relative path",
			path:     "repos/o/r/pulls",
			expected: "https://api.github.com/repos/o/r/pulls",
		},
		{
			name:     "leading slash trimmed",
			path:     "/repos/o/r/pulls",
			expected: "https://api.github.com/repos/o/r/pulls",
		},
		{
			name:     "absolute URL untouched",
			path:     "https://api.github.com/repos/o/r/pulls/1",
			expected: "https://api.github.com/repos/o/r/pulls/1",
		},
		{
			name:     "params encoded",
			path:     "repos/o/r/pulls",
			params:   params,
			expected: "https://api.github.com/repos/o/r/pulls?state=all",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, client.resolveURL(tc.path, tc.params))
		})
	}
}

func TestRetryPolicy_RateLimitWait(t *testing.T) {
	policy := retryPolicy{maxRetries: 3}

	// Reset close by: reset_seconds+1 wins.
	assert.Equal(t, 3*time.Second, policy.rateLimitWait(2, 0))
	// Reset far out: the capped schedule wins.
	assert.Equal(t, 5*time.Second, policy.rateLimitWait(3600, 0))
	assert.Equal(t, 10*time.Second, policy.rateLimitWait(3600, 1))
	assert.Equal(t, 20*time.Second, policy.rateLimitWait(3600, 2))
}

func TestErrorKinds(t *testing.T) {
	notFound := notFoundError("https://api.github.com/repos/o/r")
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.Contains(t, notFound.Error(), "repos/o/r")

	rateLimited := &RateLimitError{URL: "u", ResetAt: time.Unix(1_700_000_000, 0)}
	assert.Contains(t, rateLimited.Error(), "rate limit exceeded")

	wrapped := &TransportError{URL: "u", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}
