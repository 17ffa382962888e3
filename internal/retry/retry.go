// Package retry wraps fallible calls in exponential backoff with additive
// jitter. Rate-limit and transient transport failures are retried;
// configuration errors and cancellation are not.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
)

// Config controls the attempt budget and backoff curve. The delay before
// attempt k (k >= 2) is BaseDelay * 2^(k-2) plus a uniform draw from
// [0, MaxJitter).
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// DefaultConfig matches the documented defaults: 3 attempts, 1s base, 1s jitter.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Second, MaxJitter: time.Second}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxJitter <= 0 {
		c.MaxJitter = d.MaxJitter
	}
	return c
}

// Retryer executes operations under one retry policy.
type Retryer struct {
	cfg    Config
	logger zerolog.Logger
}

// New builds a Retryer; zero Config fields fall back to defaults.
func New(cfg Config, logger zerolog.Logger) *Retryer {
	return &Retryer{
		cfg:    cfg.normalized(),
		logger: logger.With().Str("component", "retry").Logger(),
	}
}

// Do runs fn until it succeeds, a non-retryable error occurs, the context is
// cancelled, or the attempt budget is spent. The last error is returned
// verbatim.
func (r *Retryer) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.backoff(attempt)
			r.logger.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying after backoff")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Debug().Str("op", op).Int("attempt", attempt).Msg("Succeeded after retry")
			}
			return nil
		}
		if !errs.IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// backoff computes the pre-attempt delay: base * 2^(attempt-2) + U[0, jitter).
func (r *Retryer) backoff(attempt int) time.Duration {
	delay := r.cfg.BaseDelay << uint(attempt-2)
	if r.cfg.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(r.cfg.MaxJitter)))
	}
	return delay
}
