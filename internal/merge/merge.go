// Package merge fuses per-source token lists into one canonical snapshot.
// Records sharing an address are combined by field precedence: the DEX
// indexer wins real-time venue data, the market-data provider wins market
// statistics, and either side backfills the other's gaps.
package merge

import (
	"sort"
	"time"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

// Config holds merge parameters.
type Config struct {
	MaxTokens    int    // snapshot cap applied after sorting
	DexSource    string // tag owning venue fields
	MarketSource string // tag owning market fields
}

// New builds a Merger, filling defaults for zero-valued config.
func New(config Config) *Merger {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1000
	}
	if config.DexSource == "" {
		config.DexSource = "dexscreener"
	}
	if config.MarketSource == "" {
		config.MarketSource = "coingecko"
	}
	return &Merger{config: config}
}

// Merger implements address-keyed field-precedence fusion.
type Merger struct {
	config Config
}

// Config returns the active merge configuration.
func (m *Merger) Config() Config {
	return m.config
}

// Merge flattens the per-source lists, canonicalizes addresses, fuses groups
// that share one, and returns the snapshot sorted by volume_24h descending,
// truncated to MaxTokens. Empty-address records are dropped.
func (m *Merger) Merge(lists ...[]models.Token) *models.Snapshot {
	groups := make(map[string][]models.Token)
	order := make([]string, 0)

	for _, list := range lists {
		for i := range list {
			tok := list[i]
			tok.Address = models.NormalizeAddress(tok.Address)
			if tok.Address == "" {
				continue
			}
			if _, seen := groups[tok.Address]; !seen {
				order = append(order, tok.Address)
			}
			groups[tok.Address] = append(groups[tok.Address], tok)
		}
	}

	now := time.Now().UTC()
	merged := make([]models.Token, 0, len(order))
	for _, addr := range order {
		group := groups[addr]
		if len(group) == 1 {
			tok := group[0]
			tok.IsMerged = false
			merged = append(merged, tok)
			continue
		}

		// Left-fold so groups larger than two stay associative on the
		// declared precedence.
		result := group[0]
		for i := 1; i < len(group); i++ {
			result = m.fuse(result, group[i], now)
		}
		merged = append(merged, result)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Volume24h != merged[j].Volume24h {
			return merged[i].Volume24h > merged[j].Volume24h
		}
		return merged[i].Address < merged[j].Address
	})
	if len(merged) > m.config.MaxTokens {
		merged = merged[:m.config.MaxTokens]
	}

	return &models.Snapshot{Tokens: merged, UpdatedAt: now}
}

// fuse combines two same-address records. Role assignment follows source
// tags; when tags cannot distinguish the pair, the left operand takes the
// DEX role and the right the market role.
func (m *Merger) fuse(a, b models.Token, now time.Time) models.Token {
	dex, market := a, b
	if b.HasSource(m.config.DexSource) && !a.HasSource(m.config.DexSource) {
		dex, market = b, a
	}

	out := models.Token{
		Address: dex.Address,
		Name:    firstNonEmpty(dex.Name, market.Name),
		Ticker:  firstNonEmpty(dex.Ticker, market.Ticker),

		// Real-time venue data: DEX wins, market data backfills.
		Price:               preferFloat(dex.Price, market.Price),
		Change1h:            preferFloat(dex.Change1h, market.Change1h),
		Change6h:            preferFloat(dex.Change6h, market.Change6h),
		Change24h:           preferFloat(dex.Change24h, market.Change24h),
		Volume24h:           preferFloat(dex.Volume24h, market.Volume24h),
		Liquidity:           preferFloat(dex.Liquidity, market.Liquidity),
		TransactionCount24h: preferInt(dex.TransactionCount24h, market.TransactionCount24h),
		Dex:                 firstNonEmpty(dex.Dex, market.Dex),
		DexURL:              firstNonEmpty(dex.DexURL, market.DexURL),

		// Canonical market data: market provider wins, DEX backfills.
		ChangePct24h:          preferFloat(market.ChangePct24h, dex.ChangePct24h),
		MarketCap:             preferFloat(market.MarketCap, dex.MarketCap),
		MarketCapChange24h:    preferFloat(market.MarketCapChange24h, dex.MarketCapChange24h),
		MarketCapChangePct24h: preferFloat(market.MarketCapChangePct24h, dex.MarketCapChangePct24h),
		CirculatingSupply:     preferFloat(market.CirculatingSupply, dex.CirculatingSupply),
		TotalSupply:           preferFloat(market.TotalSupply, dex.TotalSupply),
		High24h:               preferFloat(market.High24h, dex.High24h),
		Low24h:                preferFloat(market.Low24h, dex.Low24h),
		ATH:                   preferFloat(market.ATH, dex.ATH),
		ATHChangePct:          preferFloat(market.ATHChangePct, dex.ATHChangePct),
		ATHDate:               preferTime(market.ATHDate, dex.ATHDate),
		ATL:                   preferFloat(market.ATL, dex.ATL),
		ATLChangePct:          preferFloat(market.ATLChangePct, dex.ATLChangePct),
		ATLDate:               preferTime(market.ATLDate, dex.ATLDate),
		ROI:                   preferROI(market.ROI, dex.ROI),
		Rank:                  preferRank(market.Rank, dex.Rank),
		Image:                 firstNonEmpty(market.Image, dex.Image),

		Sources:     unionSources(dex.Sources, market.Sources),
		LastUpdated: now,
		IsMerged:    true,
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func preferFloat(preferred, fallback float64) float64 {
	if preferred != 0 {
		return preferred
	}
	return fallback
}

func preferInt(preferred, fallback int) int {
	if preferred != 0 {
		return preferred
	}
	return fallback
}

func preferTime(preferred, fallback *time.Time) *time.Time {
	if preferred != nil {
		return preferred
	}
	return fallback
}

func preferROI(preferred, fallback *models.ROI) *models.ROI {
	if preferred != nil {
		return preferred
	}
	return fallback
}

func preferRank(preferred, fallback *int) *int {
	if preferred != nil {
		return preferred
	}
	return fallback
}

func unionSources(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
