// Package detect diffs successive snapshots and classifies material moves
// into alert events.
package detect

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

// Thresholds are the minimum relative moves that fire an alert. Every
// comparison is strict and guarded on a positive previous value, so a token
// coming from zero never alerts.
type Thresholds struct {
	// Price is the relative price move, 0.05 meaning 5%.
	Price float64
	// Volume is a multiplier: the current 24h volume must exceed
	// Volume times the previous one.
	Volume float64
	// MarketCap is the relative market-cap move.
	MarketCap float64
	// Liquidity is the relative liquidity move.
	Liquidity float64
}

// DefaultThresholds returns the production trigger levels.
func DefaultThresholds() Thresholds {
	return Thresholds{Price: 0.05, Volume: 2.0, MarketCap: 0.10, Liquidity: 0.20}
}

func (t Thresholds) normalized() Thresholds {
	def := DefaultThresholds()
	if t.Price <= 0 {
		t.Price = def.Price
	}
	if t.Volume <= 0 {
		t.Volume = def.Volume
	}
	if t.MarketCap <= 0 {
		t.MarketCap = def.MarketCap
	}
	if t.Liquidity <= 0 {
		t.Liquidity = def.Liquidity
	}
	return t
}

// Detector compares two snapshots token by token.
type Detector struct {
	th     Thresholds
	logger zerolog.Logger
}

func New(th Thresholds, logger zerolog.Logger) *Detector {
	return &Detector{
		th:     th.normalized(),
		logger: logger.With().Str("component", "detector").Logger(),
	}
}

// Detect produces the event batch for a tick. The first event is always a
// batch_update carrying the full current snapshot; alerts follow in
// current-snapshot order. With no previous snapshot only the batch_update is
// emitted, since appearance is not a change. Tokens that left the snapshot
// are ignored.
func (d *Detector) Detect(previous, current *models.Snapshot) []models.Event {
	if current == nil {
		return nil
	}

	events := []models.Event{models.NewEvent(models.EventBatchUpdate, models.BatchUpdate{
		Tokens:    current.Tokens,
		Count:     current.Len(),
		UpdatedAt: current.UpdatedAt,
	})}
	if previous == nil {
		return events
	}

	prev := previous.Index()
	for i := range current.Tokens {
		cur := &current.Tokens[i]
		old, ok := prev[cur.Address]
		if !ok {
			continue
		}
		events = append(events, d.diffToken(&old, cur)...)
	}

	if alerts := len(events) - 1; alerts > 0 {
		d.logger.Debug().
			Int("alerts", alerts).
			Int("tokens", current.Len()).
			Msg("Material changes detected")
	}
	return events
}

// diffToken evaluates each alert condition independently, so one token can
// fire several kinds in the same tick.
func (d *Detector) diffToken(old, cur *models.Token) []models.Event {
	var out []models.Event

	if old.Price > 0 {
		rel := (cur.Price - old.Price) / old.Price
		if math.Abs(rel) > d.th.Price {
			direction := "up"
			if rel < 0 {
				direction = "down"
			}
			out = append(out, models.NewEvent(models.EventPriceAlert, models.PriceAlert{
				Address:   cur.Address,
				Ticker:    cur.Ticker,
				OldPrice:  old.Price,
				NewPrice:  cur.Price,
				ChangePct: rel * 100,
				Direction: direction,
			}))
		}
	}

	if old.Volume24h > 0 && cur.Volume24h > d.th.Volume*old.Volume24h {
		out = append(out, models.NewEvent(models.EventVolumeAlert, models.VolumeAlert{
			Address:       cur.Address,
			Ticker:        cur.Ticker,
			Volume24h:     cur.Volume24h,
			PrevVolume24h: old.Volume24h,
			Price:         cur.Price,
			MarketCap:     cur.MarketCap,
		}))
	}

	if old.MarketCap > 0 {
		rel := (cur.MarketCap - old.MarketCap) / old.MarketCap
		if math.Abs(rel) > d.th.MarketCap {
			out = append(out, models.NewEvent(models.EventMarketCapAlert, models.MarketCapAlert{
				Address:      cur.Address,
				Ticker:       cur.Ticker,
				OldMarketCap: old.MarketCap,
				NewMarketCap: cur.MarketCap,
				ChangePct:    rel * 100,
				Rank:         cur.Rank,
			}))
		}
	}

	if old.Liquidity > 0 {
		rel := (cur.Liquidity - old.Liquidity) / old.Liquidity
		if math.Abs(rel) > d.th.Liquidity {
			out = append(out, models.NewEvent(models.EventLiquidityAlert, models.LiquidityAlert{
				Address:      cur.Address,
				Ticker:       cur.Ticker,
				OldLiquidity: old.Liquidity,
				NewLiquidity: cur.Liquidity,
				ChangePct:    rel * 100,
				Dex:          cur.Dex,
			}))
		}
	}

	return out
}
