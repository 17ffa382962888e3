package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/ratelimit"
)

func testLimiter(t *testing.T, tag string, points int) *ratelimit.Limiter {
	t.Helper()
	lim, err := ratelimit.New(map[string]ratelimit.Budget{
		tag: {Points: points, Duration: time.Minute},
	})
	require.NoError(t, err)
	return lim
}

const dexSearchFixture = `{
  "pairs": [
    {
      "baseToken": {"address": "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", "name": "Samoyedcoin", "symbol": "SAMO"},
      "priceUsd": "0.0123",
      "priceChange": {"h1": 1.5, "h6": -2.25, "h24": 10.5},
      "fdv": 55000000,
      "volume": {"h24": 1250000},
      "liquidity": {"usd": 850000},
      "txns": {"h24": {"buys": 420, "sells": 180}},
      "dexId": "raydium",
      "url": "https://dexscreener.com/solana/samo",
      "info": {"imageUrl": "https://img.example/samo.png"},
      "pairCreatedAt": 1635724800000
    },
    {
      "baseToken": {"address": "", "name": "Ghost", "symbol": "GHST"},
      "priceUsd": "1.0",
      "priceChange": {"h1": 0, "h6": 0, "h24": 0},
      "volume": {"h24": 10},
      "liquidity": {"usd": 10},
      "txns": {"h24": {"buys": 1, "sells": 1}},
      "dexId": "orca",
      "url": "https://dexscreener.com/solana/ghost"
    },
    {
      "baseToken": {"address": "FreePriceless111111111111111111111111111111", "name": "Zero", "symbol": "ZRO"},
      "priceUsd": "0",
      "priceChange": {"h1": 0, "h6": 0, "h24": 0},
      "volume": {"h24": 5},
      "liquidity": {"usd": 5},
      "txns": {"h24": {"buys": 0, "sells": 0}},
      "dexId": "orca",
      "url": "https://dexscreener.com/solana/zero"
    }
  ]
}`

func TestDexScreenerFetchMapsAndFilters(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(dexSearchFixture))
	}))
	defer srv.Close()

	adapter := NewDexScreener(
		AdapterConfig{BaseURL: srv.URL, BatchSize: 50},
		"SOLANA",
		testLimiter(t, TagDexScreener, 10),
		zerolog.Nop(),
	)

	tokens, err := adapter.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/search", gotPath)
	assert.Equal(t, "q=SOLANA", gotQuery)
	assert.Equal(t, UserAgent, gotUA)

	// Empty-address and zero-price rows are dropped silently.
	require.Len(t, tokens, 1)
	tok := tokens[0]
	assert.Equal(t, "7xkxtg2cw87d97txjsdpbd5jbkhetqa83tzrujosgasu", tok.Address, "address is lowercased")
	assert.Equal(t, "Samoyedcoin", tok.Name)
	assert.Equal(t, "SAMO", tok.Ticker)
	assert.Equal(t, 0.0123, tok.Price)
	assert.Equal(t, 1.5, tok.Change1h)
	assert.Equal(t, -2.25, tok.Change6h)
	assert.Equal(t, 10.5, tok.Change24h)
	assert.Equal(t, float64(0), tok.ChangePct24h, "DEX source leaves pct change to market data")
	assert.Equal(t, float64(55000000), tok.MarketCap, "fdv stands in for market cap")
	assert.Equal(t, float64(1250000), tok.Volume24h)
	assert.Equal(t, float64(850000), tok.Liquidity)
	assert.Equal(t, 600, tok.TransactionCount24h)
	assert.Equal(t, "raydium", tok.Dex)
	assert.Equal(t, "https://dexscreener.com/solana/samo", tok.DexURL)
	assert.Equal(t, "https://img.example/samo.png", tok.Image)
	assert.Equal(t, []string{TagDexScreener}, tok.Sources)
	assert.False(t, tok.IsMerged)
	assert.False(t, tok.LastUpdated.IsZero())
}

func TestDexScreenerFetchCapsAtBatchSize(t *testing.T) {
	pairs := make([]map[string]any, 0, 5)
	for i := 0; i < 5; i++ {
		pairs = append(pairs, map[string]any{
			"baseToken": map[string]any{"address": string(rune('a'+i)) + "ddr", "name": "T", "symbol": "T"},
			"priceUsd":  "1.0",
			"volume":    map[string]any{"h24": 100},
			"liquidity": map[string]any{"usd": 100},
			"txns":      map[string]any{"h24": map[string]any{"buys": 1, "sells": 1}},
			"dexId":     "raydium",
		})
	}
	body, err := json.Marshal(map[string]any{"pairs": pairs})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	adapter := NewDexScreener(
		AdapterConfig{BaseURL: srv.URL, BatchSize: 2},
		"SOLANA",
		testLimiter(t, TagDexScreener, 10),
		zerolog.Nop(),
	)

	tokens, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestDexScreenerFetch429BecomesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adapter := NewDexScreener(
		AdapterConfig{BaseURL: srv.URL},
		"SOLANA",
		testLimiter(t, TagDexScreener, 10),
		zerolog.Nop(),
	)

	_, err := adapter.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRateLimited(err))
	assert.Equal(t, 3*time.Second, errs.RetryAfter(err))
}

func TestDexScreenerFetchStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error retried", http.StatusInternalServerError, true},
		{"bad gateway retried", http.StatusBadGateway, true},
		{"not found not retried", http.StatusNotFound, false},
		{"forbidden not retried", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			adapter := NewDexScreener(
				AdapterConfig{BaseURL: srv.URL},
				"SOLANA",
				testLimiter(t, TagDexScreener, 10),
				zerolog.Nop(),
			)

			_, err := adapter.Fetch(context.Background())
			require.Error(t, err)
			assert.False(t, errs.IsRateLimited(err))
			assert.Equal(t, tt.retryable, errs.IsRetryable(err))
		})
	}
}

func TestDexScreenerFetchParseFailureIsRetryableTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs": [{`))
	}))
	defer srv.Close()

	adapter := NewDexScreener(
		AdapterConfig{BaseURL: srv.URL},
		"SOLANA",
		testLimiter(t, TagDexScreener, 10),
		zerolog.Nop(),
	)

	_, err := adapter.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRetryable(err))
}

func TestDexScreenerFetchExhaustedLimiterSkipsNetwork(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"pairs": []}`))
	}))
	defer srv.Close()

	adapter := NewDexScreener(
		AdapterConfig{BaseURL: srv.URL},
		"SOLANA",
		testLimiter(t, TagDexScreener, 1),
		zerolog.Nop(),
	)

	_, err := adapter.Fetch(context.Background())
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRateLimited(err))
	assert.Equal(t, int64(1), hits.Load(), "no request once the local budget is spent")
}

func TestFlexFloatDecoding(t *testing.T) {
	var doc struct {
		A flexFloat `json:"a"`
		B flexFloat `json:"b"`
		C flexFloat `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "1.5", "b": 2.25, "c": null}`), &doc))
	assert.Equal(t, flexFloat(1.5), doc.A)
	assert.Equal(t, flexFloat(2.25), doc.B)
	assert.Equal(t, flexFloat(0), doc.C)

	err := json.Unmarshal([]byte(`{"a": "not-a-number"}`), &doc)
	assert.Error(t, err)
}
