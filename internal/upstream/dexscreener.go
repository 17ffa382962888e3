package upstream

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/ratelimit"
)

// DexScreener pulls trading pairs from the DEX indexer's search endpoint.
// It owns the real-time venue fields: price, volume, liquidity, transaction
// counts, and the venue identity.
type DexScreener struct {
	client    *client
	batchSize int
	query     string
	logger    zerolog.Logger
}

// NewDexScreener builds the DEX indexer adapter. query is the search term
// the listing universe is pulled for.
func NewDexScreener(cfg AdapterConfig, query string, limiter *ratelimit.Limiter, logger zerolog.Logger) *DexScreener {
	cfg = cfg.normalized()
	if query == "" {
		query = "SOLANA"
	}
	return &DexScreener{
		client:    newClient(TagDexScreener, cfg, limiter, logger),
		batchSize: cfg.BatchSize,
		query:     query,
		logger:    logger.With().Str("upstream", TagDexScreener).Logger(),
	}
}

func (d *DexScreener) Tag() string { return TagDexScreener }

// BreakerState reports the adapter's circuit state for health output.
func (d *DexScreener) BreakerState() gobreaker.State { return d.client.BreakerState() }

// Fetch returns the current pair listings as canonical tokens. Rows missing
// an address or priced at zero are dropped; the result is capped at the
// configured batch size.
func (d *DexScreener) Fetch(ctx context.Context) ([]models.Token, error) {
	path := "/search?q=" + url.QueryEscape(d.query)
	body, err := d.client.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp dexSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errs.TransportError{
			Upstream:  TagDexScreener,
			Op:        "parse " + path,
			Err:       err,
			Retryable: true,
		}
	}

	now := time.Now().UTC()
	tokens := make([]models.Token, 0, min(len(resp.Pairs), d.batchSize))
	for i := range resp.Pairs {
		tok := resp.Pairs[i].toToken(now)
		if !tok.Valid() {
			d.logger.Debug().
				Str("address", tok.Address).
				Float64("price", tok.Price).
				Msg("Dropping inadmissible pair")
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) >= d.batchSize {
			break
		}
	}

	d.logger.Debug().Int("pairs", len(resp.Pairs)).Int("tokens", len(tokens)).Msg("Fetched DEX listings")
	return tokens, nil
}

type dexSearchResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd    flexFloat `json:"priceUsd"`
	PriceChange struct {
		H1  float64 `json:"h1"`
		H6  float64 `json:"h6"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	FDV    float64 `json:"fdv"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Txns struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	DexID string `json:"dexId"`
	URL   string `json:"url"`
	Info  struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// toToken maps a pair row onto the canonical record. The DEX indexer has no
// supply, ath/atl, or percentage-change data; fdv stands in for market cap.
func (p *dexPair) toToken(fetchedAt time.Time) models.Token {
	return models.Token{
		Address:             models.NormalizeAddress(p.BaseToken.Address),
		Name:                p.BaseToken.Name,
		Ticker:              p.BaseToken.Symbol,
		Price:               float64(p.PriceUsd),
		Change1h:            p.PriceChange.H1,
		Change6h:            p.PriceChange.H6,
		Change24h:           p.PriceChange.H24,
		MarketCap:           p.FDV,
		Volume24h:           p.Volume.H24,
		Liquidity:           p.Liquidity.USD,
		TransactionCount24h: p.Txns.H24.Buys + p.Txns.H24.Sells,
		Dex:                 p.DexID,
		DexURL:              p.URL,
		Image:               p.Info.ImageURL,
		Sources:             []string{TagDexScreener},
		LastUpdated:         fetchedAt,
	}
}
