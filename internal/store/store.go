// Package store holds the authoritative short-TTL snapshot. The scheduler is
// the only writer; request handlers and the change detector read immutable
// views. Backed by Redis in production and an in-process map for tests and
// cache-less development runs.
package store

import (
	"context"
	"time"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

// Cache keys. The snapshot lives under one key so readers never observe a
// half-written list; per-token keys serve point lookups.
const (
	KeySnapshot    = "tokens:all"
	keyTokenPrefix = "token:"
)

// TokenKey returns the per-token cache key for an address.
func TokenKey(address string) string {
	return keyTokenPrefix + models.NormalizeAddress(address)
}

// Store is the snapshot holder contract. Get and GetToken return (nil, nil)
// on a clean miss; infrastructure failures on reads are logged by the
// implementation and surfaced alongside the miss.
type Store interface {
	Put(ctx context.Context, snap *models.Snapshot) error
	Get(ctx context.Context) (*models.Snapshot, error)
	GetToken(ctx context.Context, address string) (*models.Token, error)
	Close() error
}

// Config holds the store knobs.
type Config struct {
	TTL          time.Duration // snapshot lifetime, default 30s
	PerTokenKeys int           // how many leading records get point-lookup keys, default 100
	OpTimeout    time.Duration // per-operation cache deadline, default 5s
}

func (c Config) normalized() Config {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.PerTokenKeys <= 0 {
		c.PerTokenKeys = 100
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	return c
}
