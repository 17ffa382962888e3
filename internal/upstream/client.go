package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/ratelimit"
)

// client is the HTTP plumbing shared by all adapters: rate-limit admission,
// a per-upstream circuit breaker, timeout, and status classification.
type client struct {
	tag     string
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

func newClient(tag string, cfg AdapterConfig, limiter *ratelimit.Limiter, logger zerolog.Logger) *client {
	settings := gobreaker.Settings{
		Name:     tag,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("upstream", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	}

	return &client{
		tag:     tag,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger.With().Str("upstream", tag).Logger(),
	}
}

// get acquires a rate-limit permit, then runs one GET through the breaker.
// Returned errors are already classified per the taxonomy.
func (c *client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Acquire(c.tag); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGet(ctx, path)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &errs.TransportError{
				Upstream:  c.tag,
				Op:        "GET " + path,
				Err:       err,
				Retryable: true,
			}
		}
		return nil, err
	}
	return body.([]byte), nil
}

func (c *client) doGet(ctx context.Context, path string) ([]byte, error) {
	op := "GET " + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &errs.TransportError{Upstream: c.tag, Op: op, Err: err, Retryable: false}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errs.TransportError{Upstream: c.tag, Op: op, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &errs.TransportError{Upstream: c.tag, Op: op, Err: err, Retryable: true}
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &errs.RateLimitedError{Upstream: c.tag, RetryAfter: retryAfterHint(resp)}

	case resp.StatusCode >= 500:
		return nil, &errs.TransportError{
			Upstream:  c.tag,
			Op:        op,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
			Retryable: true,
		}

	default:
		return nil, &errs.TransportError{
			Upstream:  c.tag,
			Op:        op,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
			Retryable: false,
		}
	}
}

// BreakerState exposes the breaker for health reporting.
func (c *client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
