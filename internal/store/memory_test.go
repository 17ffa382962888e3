package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

func testSnapshot(addrs ...string) *models.Snapshot {
	snap := &models.Snapshot{UpdatedAt: time.Now().UTC()}
	for i, addr := range addrs {
		snap.Tokens = append(snap.Tokens, models.Token{
			Address:   addr,
			Name:      "Token " + addr,
			Price:     float64(i + 1),
			Volume24h: float64((i + 1) * 100),
			Sources:   []string{"dexscreener"},
		})
	}
	return snap
}

func TestMemoryPutGetRoundTrip(t *testing.T) {
	s := NewMemory(Config{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testSnapshot("0xa", "0xb")))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, "0xa", got.Tokens[0].Address)
}

func TestMemoryGetMissWhenEmpty(t *testing.T) {
	s := NewMemory(Config{})

	got, err := s.Get(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryTTLExpiry(t *testing.T) {
	s := NewMemory(Config{TTL: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testSnapshot("0xa")))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	time.Sleep(40 * time.Millisecond)

	got, err = s.Get(ctx)
	assert.NoError(t, err)
	assert.Nil(t, got, "expired snapshot reads as a miss")

	tok, err := s.GetToken(ctx, "0xa")
	assert.NoError(t, err)
	assert.Nil(t, tok)
}

func TestMemoryGetTokenCaseInsensitive(t *testing.T) {
	s := NewMemory(Config{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testSnapshot("0xabc")))

	tok, err := s.GetToken(ctx, "0xABC")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "0xabc", tok.Address)
}

func TestMemoryPerTokenKeyLimit(t *testing.T) {
	s := NewMemory(Config{TTL: time.Minute, PerTokenKeys: 2})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testSnapshot("0xa", "0xb", "0xc")))

	tok, err := s.GetToken(ctx, "0xb")
	require.NoError(t, err)
	assert.NotNil(t, tok)

	tok, err = s.GetToken(ctx, "0xc")
	require.NoError(t, err)
	assert.Nil(t, tok, "records past the limit have no point-lookup key")

	// The full snapshot still carries every record.
	snap, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
}

func TestMemoryReadsAreImmutableViews(t *testing.T) {
	s := NewMemory(Config{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testSnapshot("0xa")))

	first, err := s.Get(ctx)
	require.NoError(t, err)
	first.Tokens[0].Name = "mutated"
	first.Tokens[0].Sources[0] = "mutated"

	second, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Token 0xa", second.Tokens[0].Name)
	assert.Equal(t, "dexscreener", second.Tokens[0].Sources[0])
}

func TestMemoryPutReplacesWholesale(t *testing.T) {
	s := NewMemory(Config{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, testSnapshot("0xa", "0xb")))
	require.NoError(t, s.Put(ctx, testSnapshot("0xc")))

	snap, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "0xc", snap.Tokens[0].Address)

	tok, err := s.GetToken(ctx, "0xa")
	require.NoError(t, err)
	assert.Nil(t, tok, "old per-token keys do not survive a replace")
}
