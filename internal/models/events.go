package models

import "time"

// EventKind tags an Event with its payload type.
type EventKind string

const (
	EventBatchUpdate           EventKind = "batch_update"
	EventPriceAlert            EventKind = "price_alert"
	EventVolumeAlert           EventKind = "volume_alert"
	EventMarketCapAlert        EventKind = "market_cap_alert"
	EventLiquidityAlert        EventKind = "liquidity_alert"
	EventSubscribedTokenUpdate EventKind = "subscribed_token_update"
)

// EventPayload is implemented by exactly one struct per event kind.
type EventPayload interface {
	eventPayload()
}

// Event is the unit handed to the broadcaster and the event sink.
// Wire shape: {"type": ..., "data": ..., "timestamp": ...}.
type Event struct {
	Kind      EventKind    `json:"type"`
	Payload   EventPayload `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewEvent stamps a payload with its kind and the current instant.
func NewEvent(kind EventKind, payload EventPayload) Event {
	return Event{Kind: kind, Payload: payload, Timestamp: time.Now().UTC()}
}

// TokenAddress returns the address an alert refers to, or "" for
// snapshot-wide events.
func (e Event) TokenAddress() string {
	switch p := e.Payload.(type) {
	case BatchUpdate:
		return ""
	case PriceAlert:
		return p.Address
	case VolumeAlert:
		return p.Address
	case MarketCapAlert:
		return p.Address
	case LiquidityAlert:
		return p.Address
	case SubscribedTokenUpdate:
		return p.Address
	default:
		return ""
	}
}

// BatchUpdate carries the full current snapshot.
type BatchUpdate struct {
	Tokens    []Token   `json:"tokens"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BatchUpdate) eventPayload() {}

// PriceAlert fires when |Δprice| / prev_price exceeds the price threshold.
type PriceAlert struct {
	Address   string  `json:"address"`
	Ticker    string  `json:"ticker"`
	OldPrice  float64 `json:"old_price"`
	NewPrice  float64 `json:"new_price"`
	ChangePct float64 `json:"change_pct"`
	Direction string  `json:"direction"`
}

func (PriceAlert) eventPayload() {}

// VolumeAlert fires when 24h volume more than doubles tick-over-tick.
type VolumeAlert struct {
	Address       string  `json:"address"`
	Ticker        string  `json:"ticker"`
	Volume24h     float64 `json:"volume_24h"`
	PrevVolume24h float64 `json:"prev_volume_24h"`
	Price         float64 `json:"price"`
	MarketCap     float64 `json:"market_cap"`
}

func (VolumeAlert) eventPayload() {}

// MarketCapAlert fires when |Δmarket_cap| / prev exceeds its threshold.
type MarketCapAlert struct {
	Address      string  `json:"address"`
	Ticker       string  `json:"ticker"`
	OldMarketCap float64 `json:"old_market_cap"`
	NewMarketCap float64 `json:"new_market_cap"`
	ChangePct    float64 `json:"change_pct"`
	Rank         *int    `json:"rank,omitempty"`
}

func (MarketCapAlert) eventPayload() {}

// LiquidityAlert fires when |Δliquidity| / prev exceeds its threshold.
type LiquidityAlert struct {
	Address      string  `json:"address"`
	Ticker       string  `json:"ticker"`
	OldLiquidity float64 `json:"old_liquidity"`
	NewLiquidity float64 `json:"new_liquidity"`
	ChangePct    float64 `json:"change_pct"`
	Dex          string  `json:"dex"`
}

func (LiquidityAlert) eventPayload() {}

// SubscribedTokenUpdate is delivered only to connections subscribed to the
// token's address.
type SubscribedTokenUpdate struct {
	Address string `json:"address"`
	Token   Token  `json:"token"`
}

func (SubscribedTokenUpdate) eventPayload() {}
