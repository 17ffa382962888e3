// Package ratelimit provides per-upstream token-bucket admission control.
package ratelimit

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
)

// Budget is a token-bucket definition: Points permits refilled linearly
// over Duration. (300, 60s) means 300 requests per minute.
type Budget struct {
	Points   int
	Duration time.Duration
}

// Limiter admits requests per upstream tag. Acquire never blocks; callers
// decide whether to wait on the returned retry hint.
type Limiter struct {
	buckets map[string]*rate.Limiter
	budgets map[string]Budget
}

// New builds a limiter for a fixed set of upstream tags.
func New(budgets map[string]Budget) (*Limiter, error) {
	l := &Limiter{
		buckets: make(map[string]*rate.Limiter, len(budgets)),
		budgets: make(map[string]Budget, len(budgets)),
	}
	for tag, b := range budgets {
		if b.Points <= 0 {
			return nil, &errs.ConfigError{Field: "rate_limit." + tag, Reason: "points must be positive"}
		}
		if b.Duration <= 0 {
			return nil, &errs.ConfigError{Field: "rate_limit." + tag, Reason: "duration must be positive"}
		}
		refill := rate.Limit(float64(b.Points) / b.Duration.Seconds())
		l.buckets[tag] = rate.NewLimiter(refill, b.Points)
		l.budgets[tag] = b
	}
	return l, nil
}

// Acquire consumes one permit for tag. On an exhausted bucket it returns a
// RateLimitedError carrying the wait until the next permit; it never blocks.
// An unknown tag is a configuration error.
func (l *Limiter) Acquire(tag string) error {
	bucket, ok := l.buckets[tag]
	if !ok {
		return &errs.ConfigError{Field: "rate_limit", Reason: fmt.Sprintf("unknown upstream tag %q", tag)}
	}
	if bucket.Allow() {
		return nil
	}

	// Reserve tells us when the next permit lands; cancel it so the probe
	// itself does not consume budget.
	res := bucket.Reserve()
	retryAfter := res.Delay()
	res.Cancel()
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	return &errs.RateLimitedError{Upstream: tag, RetryAfter: retryAfter}
}

// Budget returns the configured budget for tag.
func (l *Limiter) Budget(tag string) (Budget, bool) {
	b, ok := l.budgets[tag]
	return b, ok
}

// Tags lists the configured upstream tags.
func (l *Limiter) Tags() []string {
	tags := make([]string, 0, len(l.buckets))
	for tag := range l.buckets {
		tags = append(tags, tag)
	}
	return tags
}
