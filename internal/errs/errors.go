// Package errs defines the error taxonomy shared across the aggregator:
// transport failures, rate limiting, cache outages, per-record validation,
// configuration problems, and partial upstream failure.
package errs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TransportError wraps a failure to reach or read an upstream: connection
// errors, timeouts, unexpected status codes, and body parse failures.
type TransportError struct {
	Upstream  string
	Op        string
	Err       error
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %s: %v", e.Upstream, e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s: %s failed", e.Upstream, e.Op)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitedError reports an exhausted rate budget. RetryAfter is the wait
// until the next permit becomes available.
type RateLimitedError struct {
	Upstream   string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("upstream %s: rate limited, retry after %s", e.Upstream, e.RetryAfter)
}

// CacheUnavailableError reports a failed cache operation. Writes abort the
// current tick; reads are treated as misses by the caller.
type CacheUnavailableError struct {
	Op  string
	Err error
}

func (e *CacheUnavailableError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheUnavailableError) Unwrap() error { return e.Err }

// ValidationError marks a single inadmissible record or request parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigError is fatal at startup and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// PartialFailureError records a tick where at least one upstream failed but
// survivors still produced a snapshot.
type PartialFailureError struct {
	Failed    map[string]error
	Succeeded []string
}

func (e *PartialFailureError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("partial failure: %s failed, %s succeeded",
		strings.Join(names, ","), strings.Join(e.Succeeded, ","))
}

// IsRateLimited reports whether err is (or wraps) a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// RetryAfter extracts the wait hint from a rate-limited error, zero otherwise.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCacheUnavailable reports whether err is (or wraps) a CacheUnavailableError.
func IsCacheUnavailable(err error) bool {
	var cu *CacheUnavailableError
	return errors.As(err, &cu)
}

// IsPartialFailure reports whether err is (or wraps) a PartialFailureError.
func IsPartialFailure(err error) bool {
	var pf *PartialFailureError
	return errors.As(err, &pf)
}

// IsRetryable classifies err for the retry wrapper. Rate limits and
// retryable transport failures are retried; configuration, validation,
// cache, and cancellation errors are not. Unclassified errors default to
// retryable so transient upstream hiccups get their full attempt budget.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var cu *CacheUnavailableError
	if errors.As(err, &cu) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return true
}
