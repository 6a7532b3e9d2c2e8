package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks a 404 from the API. It is never retried: callers branch
// on it to treat "not yet generated" resources as empty instead of fatal.
var ErrNotFound = errors.New("resource not found")

// TransportError is a terminal network-level or API-level failure, surfaced
// only after the retry budget is exhausted.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError is returned when the API rate limit is exhausted and the
// retry budget could not outlast it. ResetAt is the server-reported time at
// which the quota is restored.
type RateLimitError struct {
	URL     string
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, resets at %s", e.URL, e.ResetAt.Format(time.RFC3339))
}

// MalformedResponseError is returned when a successful HTTP exchange carries
// a payload that cannot be decoded. It is fatal and never retried.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func notFoundError(url string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, url)
}
