package detect

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

func snapAt(ts time.Time, tokens ...models.Token) *models.Snapshot {
	return &models.Snapshot{Tokens: tokens, UpdatedAt: ts}
}

func tok(addr string, price, volume, mcap, liq float64) models.Token {
	return models.Token{
		Address:   addr,
		Ticker:    "TKN",
		Price:     price,
		Volume24h: volume,
		MarketCap: mcap,
		Liquidity: liq,
		Dex:       "raydium",
	}
}

func kinds(events []models.Event) []models.EventKind {
	out := make([]models.EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestFirstTickEmitsOnlyBatchUpdate(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	now := time.Now().UTC()
	curr := snapAt(now, tok("0xa", 1, 1000, 1e6, 1e5))

	events := d.Detect(nil, curr)

	require.Len(t, events, 1)
	assert.Equal(t, models.EventBatchUpdate, events[0].Kind)

	payload, ok := events[0].Payload.(models.BatchUpdate)
	require.True(t, ok)
	assert.Equal(t, 1, payload.Count)
	assert.Equal(t, now, payload.UpdatedAt)
	assert.Equal(t, "0xa", payload.Tokens[0].Address)
}

func TestBatchUpdateAlwaysLeads(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 1.00, 1000, 1e6, 1e5))
	curr := snapAt(time.Now(), tok("0xa", 2.00, 1000, 1e6, 1e5))

	events := d.Detect(prev, curr)

	require.NotEmpty(t, events)
	assert.Equal(t, models.EventBatchUpdate, events[0].Kind)
}

func TestPriceAlertFiresOnEightPercentMove(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 1.00, 0, 0, 0))
	curr := snapAt(time.Now(), tok("0xa", 1.08, 0, 0, 0))

	events := d.Detect(prev, curr)

	require.Len(t, events, 2)
	require.Equal(t, models.EventPriceAlert, events[1].Kind)

	alert, ok := events[1].Payload.(models.PriceAlert)
	require.True(t, ok)
	assert.Equal(t, "0xa", alert.Address)
	assert.Equal(t, 1.00, alert.OldPrice)
	assert.Equal(t, 1.08, alert.NewPrice)
	assert.InDelta(t, 8.0, alert.ChangePct, 1e-9)
	assert.Equal(t, "up", alert.Direction)
}

func TestPriceAlertDirectionDown(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 1.00, 0, 0, 0))
	curr := snapAt(time.Now(), tok("0xa", 0.90, 0, 0, 0))

	events := d.Detect(prev, curr)

	require.Len(t, events, 2)
	alert := events[1].Payload.(models.PriceAlert)
	assert.InDelta(t, -10.0, alert.ChangePct, 1e-9)
	assert.Equal(t, "down", alert.Direction)
}

func TestVolumeAlertFiresOnTriple(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prevTok := tok("0xa", 1.00, 1000, 5e6, 0)
	currTok := tok("0xa", 1.00, 3000, 5e6, 0)
	// Keep market cap steady so only the volume condition trips.
	events := d.Detect(snapAt(time.Now(), prevTok), snapAt(time.Now(), currTok))

	require.Len(t, events, 2)
	require.Equal(t, models.EventVolumeAlert, events[1].Kind)

	alert := events[1].Payload.(models.VolumeAlert)
	assert.Equal(t, 3000.0, alert.Volume24h)
	assert.Equal(t, 1000.0, alert.PrevVolume24h)
	assert.Equal(t, 1.00, alert.Price)
	assert.Equal(t, 5e6, alert.MarketCap)
}

func TestThresholdBoundariesAreStrict(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())

	// Each current value sits exactly at its threshold, which must not fire.
	prev := snapAt(time.Now(), tok("0xa", 100, 1000, 1e6, 1e5))
	curr := snapAt(time.Now(), tok("0xa", 105, 2000, 1.1e6, 1.2e5))

	events := d.Detect(prev, curr)
	assert.Equal(t, []models.EventKind{models.EventBatchUpdate}, kinds(events),
		"exact-threshold moves stay quiet")
}

func TestMarketCapAlertCarriesRank(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	rank := 42
	prevTok := tok("0xa", 1, 0, 1e6, 0)
	currTok := tok("0xa", 1, 0, 1.2e6, 0)
	currTok.Rank = &rank

	events := d.Detect(snapAt(time.Now(), prevTok), snapAt(time.Now(), currTok))

	require.Len(t, events, 2)
	alert := events[1].Payload.(models.MarketCapAlert)
	assert.Equal(t, 1e6, alert.OldMarketCap)
	assert.Equal(t, 1.2e6, alert.NewMarketCap)
	assert.InDelta(t, 20.0, alert.ChangePct, 1e-9)
	require.NotNil(t, alert.Rank)
	assert.Equal(t, 42, *alert.Rank)
}

func TestLiquidityAlertCarriesDex(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 1, 0, 0, 100000))
	curr := snapAt(time.Now(), tok("0xa", 1, 0, 0, 125000))

	events := d.Detect(prev, curr)

	require.Len(t, events, 2)
	alert := events[1].Payload.(models.LiquidityAlert)
	assert.Equal(t, 100000.0, alert.OldLiquidity)
	assert.Equal(t, 125000.0, alert.NewLiquidity)
	assert.InDelta(t, 25.0, alert.ChangePct, 1e-9)
	assert.Equal(t, "raydium", alert.Dex)
}

func TestZeroPreviousValuesNeverAlert(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 0, 0, 0, 0))
	curr := snapAt(time.Now(), tok("0xa", 10, 1e6, 1e9, 1e7))

	events := d.Detect(prev, curr)
	assert.Equal(t, []models.EventKind{models.EventBatchUpdate}, kinds(events),
		"a token coming from zero has no baseline to alert against")
}

func TestNewTokensNeverAlert(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 1, 1000, 1e6, 1e5))
	curr := snapAt(time.Now(),
		tok("0xa", 1, 1000, 1e6, 1e5),
		tok("0xb", 99, 1e9, 1e12, 1e9),
	)

	events := d.Detect(prev, curr)
	assert.Equal(t, []models.EventKind{models.EventBatchUpdate}, kinds(events))
}

func TestDepartedTokensAreIgnored(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(),
		tok("0xa", 1.00, 0, 0, 0),
		tok("0xb", 1.00, 0, 0, 0),
	)
	curr := snapAt(time.Now(), tok("0xa", 2.00, 0, 0, 0))

	events := d.Detect(prev, curr)

	require.Len(t, events, 2)
	alert := events[1].Payload.(models.PriceAlert)
	assert.Equal(t, "0xa", alert.Address)
}

func TestConditionsFireIndependently(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 1.00, 1000, 1e6, 1e5))
	curr := snapAt(time.Now(), tok("0xa", 1.10, 3000, 1.5e6, 1.5e5))

	events := d.Detect(prev, curr)

	assert.Equal(t, []models.EventKind{
		models.EventBatchUpdate,
		models.EventPriceAlert,
		models.EventVolumeAlert,
		models.EventMarketCapAlert,
		models.EventLiquidityAlert,
	}, kinds(events))
}

func TestCustomThresholds(t *testing.T) {
	d := New(Thresholds{Price: 0.50, Volume: 10, MarketCap: 0.50, Liquidity: 0.50}, zerolog.Nop())
	prev := snapAt(time.Now(), tok("0xa", 1.00, 1000, 1e6, 1e5))
	curr := snapAt(time.Now(), tok("0xa", 1.10, 3000, 1.5e6, 1.5e5))

	events := d.Detect(prev, curr)
	assert.Equal(t, []models.EventKind{models.EventBatchUpdate}, kinds(events),
		"moves below the configured thresholds stay quiet")
}

func TestThresholdDefaultsFillZeroes(t *testing.T) {
	th := Thresholds{}.normalized()
	assert.Equal(t, DefaultThresholds(), th)

	partial := Thresholds{Price: 0.01}.normalized()
	assert.Equal(t, 0.01, partial.Price)
	assert.Equal(t, 2.0, partial.Volume)
}

func TestNilCurrentYieldsNothing(t *testing.T) {
	d := New(Thresholds{}, zerolog.Nop())
	assert.Nil(t, d.Detect(nil, nil))
}
