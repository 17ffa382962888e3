package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/ratelimit"
)

// CoinGecko pulls market listings from the market-data provider. It owns the
// canonical market fields: market cap, supplies, daily ranges, ath/atl, roi,
// rank, and the 24h percentage change.
type CoinGecko struct {
	client     *client
	batchSize  int
	vsCurrency string
	platform   string
	logger     zerolog.Logger
}

// NewCoinGecko builds the market-data adapter.
func NewCoinGecko(cfg AdapterConfig, limiter *ratelimit.Limiter, logger zerolog.Logger) *CoinGecko {
	cfg = cfg.normalized()
	return &CoinGecko{
		client:     newClient(TagCoinGecko, cfg, limiter, logger),
		batchSize:  cfg.BatchSize,
		vsCurrency: "usd",
		platform:   "solana",
		logger:     logger.With().Str("upstream", TagCoinGecko).Logger(),
	}
}

func (g *CoinGecko) Tag() string { return TagCoinGecko }

// BreakerState reports the adapter's circuit state for health output.
func (g *CoinGecko) BreakerState() gobreaker.State { return g.client.BreakerState() }

// Fetch returns the provider's market listings as canonical tokens. The
// provider has no on-chain address column, so its coin id keys the record.
func (g *CoinGecko) Fetch(ctx context.Context) ([]models.Token, error) {
	path := fmt.Sprintf("/coins/markets?vs_currency=%s&platform=%s",
		url.QueryEscape(g.vsCurrency), url.QueryEscape(g.platform))

	body, err := g.client.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []geckoMarket
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &errs.TransportError{
			Upstream:  TagCoinGecko,
			Op:        "parse " + path,
			Err:       err,
			Retryable: true,
		}
	}

	now := time.Now().UTC()
	tokens := make([]models.Token, 0, min(len(rows), g.batchSize))
	for i := range rows {
		tok := rows[i].toToken(now)
		if !tok.Valid() {
			g.logger.Debug().
				Str("address", tok.Address).
				Float64("price", tok.Price).
				Msg("Dropping inadmissible listing")
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) >= g.batchSize {
			break
		}
	}

	g.logger.Debug().Int("rows", len(rows)).Int("tokens", len(tokens)).Msg("Fetched market listings")
	return tokens, nil
}

type geckoMarket struct {
	ID                    string      `json:"id"`
	Name                  string      `json:"name"`
	Symbol                string      `json:"symbol"`
	CurrentPrice          float64     `json:"current_price"`
	PriceChange24h        float64     `json:"price_change_24h"`
	PriceChangePct24h     float64     `json:"price_change_percentage_24h"`
	MarketCap             float64     `json:"market_cap"`
	MarketCapChange24h    float64     `json:"market_cap_change_24h"`
	MarketCapChangePct24h float64     `json:"market_cap_change_percentage_24h"`
	TotalVolume           float64     `json:"total_volume"`
	CirculatingSupply     float64     `json:"circulating_supply"`
	TotalSupply           float64     `json:"total_supply"`
	High24h               float64     `json:"high_24h"`
	Low24h                float64     `json:"low_24h"`
	ATH                   float64     `json:"ath"`
	ATHChangePct          float64     `json:"ath_change_percentage"`
	ATHDate               *time.Time  `json:"ath_date"`
	ATL                   float64     `json:"atl"`
	ATLChangePct          float64     `json:"atl_change_percentage"`
	ATLDate               *time.Time  `json:"atl_date"`
	ROI                   *models.ROI `json:"roi"`
	Image                 string      `json:"image"`
	MarketCapRank         *int        `json:"market_cap_rank"`
}

// toToken maps a market row onto the canonical record. Venue fields
// (liquidity, transactions, dex) and the 1h/6h changes stay zero.
func (m *geckoMarket) toToken(fetchedAt time.Time) models.Token {
	return models.Token{
		Address:               models.NormalizeAddress(m.ID),
		Name:                  m.Name,
		Ticker:                m.Symbol,
		Price:                 m.CurrentPrice,
		Change24h:             m.PriceChange24h,
		ChangePct24h:          m.PriceChangePct24h,
		MarketCap:             m.MarketCap,
		MarketCapChange24h:    m.MarketCapChange24h,
		MarketCapChangePct24h: m.MarketCapChangePct24h,
		Volume24h:             m.TotalVolume,
		High24h:               m.High24h,
		Low24h:                m.Low24h,
		CirculatingSupply:     m.CirculatingSupply,
		TotalSupply:           m.TotalSupply,
		ATH:                   m.ATH,
		ATHChangePct:          m.ATHChangePct,
		ATHDate:               m.ATHDate,
		ATL:                   m.ATL,
		ATLChangePct:          m.ATLChangePct,
		ATLDate:               m.ATLDate,
		ROI:                   m.ROI,
		Rank:                  m.MarketCapRank,
		Image:                 m.Image,
		Sources:               []string{TagCoinGecko},
		LastUpdated:           fetchedAt,
	}
}
