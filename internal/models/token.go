// Package models holds the canonical token record, the snapshot produced by
// each aggregation tick, and the events broadcast to subscribers.
package models

import (
	"strings"
	"time"
)

// ROI mirrors the market-data provider's return-on-investment block.
type ROI struct {
	Times      float64 `json:"times"`
	Currency   string  `json:"currency"`
	Percentage float64 `json:"percentage"`
}

// Token is the canonical per-listing record, keyed by lowercase address.
// Zero-valued numeric fields mean the owning upstream did not report them;
// genuinely nullable fields are pointers.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Ticker  string `json:"ticker"`

	Price        float64 `json:"price"`
	Change1h     float64 `json:"change_1h"`
	Change6h     float64 `json:"change_6h"`
	Change24h    float64 `json:"change_24h"`
	ChangePct24h float64 `json:"change_pct_24h"`

	MarketCap             float64 `json:"market_cap"`
	MarketCapChange24h    float64 `json:"market_cap_change_24h"`
	MarketCapChangePct24h float64 `json:"market_cap_change_pct_24h"`
	Volume24h             float64 `json:"volume_24h"`
	High24h               float64 `json:"high_24h"`
	Low24h                float64 `json:"low_24h"`

	CirculatingSupply float64 `json:"circulating_supply"`
	TotalSupply       float64 `json:"total_supply"`

	Liquidity           float64 `json:"liquidity"`
	TransactionCount24h int     `json:"transaction_count_24h"`
	Dex                 string  `json:"dex"`
	DexURL              string  `json:"dex_url"`

	ATH          float64    `json:"ath"`
	ATHChangePct float64    `json:"ath_change_pct"`
	ATHDate      *time.Time `json:"ath_date,omitempty"`
	ATL          float64    `json:"atl"`
	ATLChangePct float64    `json:"atl_change_pct"`
	ATLDate      *time.Time `json:"atl_date,omitempty"`
	ROI          *ROI       `json:"roi,omitempty"`

	Sources     []string  `json:"sources"`
	Rank        *int      `json:"rank,omitempty"`
	Image       string    `json:"image"`
	LastUpdated time.Time `json:"last_updated"`
	IsMerged    bool      `json:"is_merged"`
}

// NormalizeAddress canonicalizes an address for keying and lookups.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Valid reports whether the record is admissible for publication:
// a non-empty address and a positive price.
func (t *Token) Valid() bool {
	return strings.TrimSpace(t.Address) != "" && t.Price > 0
}

// HasSource reports whether tag contributed to this record.
func (t *Token) HasSource(tag string) bool {
	for _, s := range t.Sources {
		if s == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so published snapshots stay immutable.
func (t *Token) Clone() Token {
	out := *t
	out.Sources = append([]string(nil), t.Sources...)
	if t.ATHDate != nil {
		d := *t.ATHDate
		out.ATHDate = &d
	}
	if t.ATLDate != nil {
		d := *t.ATLDate
		out.ATLDate = &d
	}
	if t.ROI != nil {
		r := *t.ROI
		out.ROI = &r
	}
	if t.Rank != nil {
		r := *t.Rank
		out.Rank = &r
	}
	return out
}

// Snapshot is the canonical list produced by one tick, sorted by volume_24h
// descending. It is replaced wholesale and never mutated in place.
type Snapshot struct {
	Tokens    []Token   `json:"tokens"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Len returns the number of tokens in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tokens)
}

// Find looks a token up by address, case-insensitively.
func (s *Snapshot) Find(addr string) (Token, bool) {
	if s == nil {
		return Token{}, false
	}
	want := NormalizeAddress(addr)
	for i := range s.Tokens {
		if s.Tokens[i].Address == want {
			return s.Tokens[i].Clone(), true
		}
	}
	return Token{}, false
}

// Index builds an address-keyed view of the snapshot's tokens.
func (s *Snapshot) Index() map[string]Token {
	if s == nil {
		return map[string]Token{}
	}
	idx := make(map[string]Token, len(s.Tokens))
	for i := range s.Tokens {
		idx[s.Tokens[i].Address] = s.Tokens[i]
	}
	return idx
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Tokens:    make([]Token, 0, len(s.Tokens)),
		UpdatedAt: s.UpdatedAt,
	}
	for i := range s.Tokens {
		out.Tokens = append(out.Tokens, s.Tokens[i].Clone())
	}
	return out
}
