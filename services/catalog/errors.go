package catalog

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when TMDB answers 404.
var ErrNotFound = errors.New("catalog: not found")

// TransientFetchError is a failed call that may succeed on a later cycle
// (network error, 5xx, timeout).
type TransientFetchError struct {
	Endpoint string
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("catalog fetch %s: %v", e.Endpoint, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// RateLimitError means TMDB throttled us despite the queue spacing.
type RateLimitError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("catalog fetch %s: rate limited (retry after %s)", e.Endpoint, e.RetryAfter)
	}
	return fmt.Sprintf("catalog fetch %s: rate limited", e.Endpoint)
}

// MalformedResponseError is a response or record missing the fields we need.
type MalformedResponseError struct {
	Endpoint string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("catalog response %s malformed: %v", e.Endpoint, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be treated as a transient fetch
// failure. Rate limiting counts as transient.
func IsTransient(err error) bool {
	var transient *TransientFetchError
	var limited *RateLimitError
	return errors.As(err, &transient) || errors.As(err, &limited)
}

// IsRateLimited reports whether TMDB throttled the call.
func IsRateLimited(err error) bool {
	var limited *RateLimitError
	return errors.As(err, &limited)
}

// IsMalformed reports whether the response could not be interpreted.
func IsMalformed(err error) bool {
	var malformed *MalformedResponseError
	return errors.As(err, &malformed)
}
