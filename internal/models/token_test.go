package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabc123", NormalizeAddress("  0xABC123 "))
	assert.Equal(t, "", NormalizeAddress("   "))
}

func TestTokenValid(t *testing.T) {
	tok := Token{Address: "0x1", Price: 0.5}
	assert.True(t, tok.Valid())

	assert.False(t, (&Token{Address: "", Price: 1}).Valid())
	assert.False(t, (&Token{Address: "0x1", Price: 0}).Valid())
	assert.False(t, (&Token{Address: "0x1", Price: -2}).Valid())
}

func TestTokenCloneIsDeep(t *testing.T) {
	rank := 7
	date := time.Date(2021, 11, 8, 0, 0, 0, 0, time.UTC)
	tok := Token{
		Address: "0x1",
		Sources: []string{"dexscreener"},
		Rank:    &rank,
		ATHDate: &date,
		ROI:     &ROI{Times: 2.5, Currency: "usd", Percentage: 250},
	}

	cp := tok.Clone()
	cp.Sources[0] = "coingecko"
	*cp.Rank = 99
	*cp.ROI = ROI{}

	assert.Equal(t, "dexscreener", tok.Sources[0])
	assert.Equal(t, 7, *tok.Rank)
	assert.Equal(t, 2.5, tok.ROI.Times)
}

func TestSnapshotFindIsCaseInsensitive(t *testing.T) {
	snap := &Snapshot{
		Tokens:    []Token{{Address: "0xabc", Name: "Bonk", Price: 1}},
		UpdatedAt: time.Now().UTC(),
	}

	got, ok := snap.Find("0xABC")
	require.True(t, ok)
	assert.Equal(t, "Bonk", got.Name)

	_, ok = snap.Find("0xmissing")
	assert.False(t, ok)

	var nilSnap *Snapshot
	_, ok = nilSnap.Find("0xabc")
	assert.False(t, ok)
	assert.Equal(t, 0, nilSnap.Len())
}

func TestEventWireShape(t *testing.T) {
	ev := NewEvent(EventPriceAlert, PriceAlert{
		Address:   "0x1",
		Ticker:    "WIF",
		OldPrice:  1.00,
		NewPrice:  1.08,
		ChangePct: 8,
		Direction: "up",
	})

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "type")
	assert.Contains(t, decoded, "data")
	assert.Contains(t, decoded, "timestamp")

	var kind string
	require.NoError(t, json.Unmarshal(decoded["type"], &kind))
	assert.Equal(t, "price_alert", kind)

	var payload PriceAlert
	require.NoError(t, json.Unmarshal(decoded["data"], &payload))
	assert.Equal(t, 1.08, payload.NewPrice)
	assert.Equal(t, "up", payload.Direction)
}

func TestEventTokenAddress(t *testing.T) {
	assert.Equal(t, "0x1", NewEvent(EventVolumeAlert, VolumeAlert{Address: "0x1"}).TokenAddress())
	assert.Equal(t, "", NewEvent(EventBatchUpdate, BatchUpdate{}).TokenAddress())
}
