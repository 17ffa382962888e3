// Package upstream fetches listing snapshots from the external providers
// and maps provider DTOs onto the canonical token record.
package upstream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

// UserAgent is sent on every upstream request.
const UserAgent = "meme-coin-aggregrator/1.0 (market data aggregator)"

// Upstream tags used for rate-limit budgets and source attribution.
const (
	TagDexScreener = "dexscreener"
	TagCoinGecko   = "coingecko"
)

// Adapter is one upstream provider. Fetch returns the provider's current
// listings mapped to canonical tokens, already validated and capped.
type Adapter interface {
	Tag() string
	Fetch(ctx context.Context) ([]models.Token, error)
}

// AdapterConfig carries the per-upstream knobs.
type AdapterConfig struct {
	BaseURL   string
	Timeout   time.Duration
	BatchSize int
}

func (c AdapterConfig) normalized() AdapterConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// flexFloat decodes numeric fields that some providers quote as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("numeric field %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}
