package store

import (
	"context"
	"sync"
	"time"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

// MemoryStore is the in-process Store used by tests and cache-less dev runs.
// It mirrors the Redis semantics: whole-snapshot replacement, per-token keys
// for the leading records, TTL checked on read.
type MemoryStore struct {
	mu      sync.RWMutex
	cfg     Config
	snap    *models.Snapshot
	tokens  map[string]models.Token
	expires time.Time
}

// NewMemory builds an empty in-process store.
func NewMemory(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:    cfg.normalized(),
		tokens: make(map[string]models.Token),
	}
}

// Put replaces the held snapshot. The store keeps its own deep copy so later
// caller mutations cannot leak into published reads.
func (s *MemoryStore) Put(_ context.Context, snap *models.Snapshot) error {
	cp := snap.Clone()

	tokens := make(map[string]models.Token)
	limit := min(len(cp.Tokens), s.cfg.PerTokenKeys)
	for i := 0; i < limit; i++ {
		tokens[cp.Tokens[i].Address] = cp.Tokens[i]
	}

	s.mu.Lock()
	s.snap = cp
	s.tokens = tokens
	s.expires = time.Now().Add(s.cfg.TTL)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the snapshot, or (nil, nil) when absent or expired.
func (s *MemoryStore) Get(_ context.Context) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snap == nil || time.Now().After(s.expires) {
		return nil, nil
	}
	return s.snap.Clone(), nil
}

// GetToken returns a copy of one token, case-insensitively, or (nil, nil).
func (s *MemoryStore) GetToken(_ context.Context, address string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if time.Now().After(s.expires) {
		return nil, nil
	}
	tok, ok := s.tokens[models.NormalizeAddress(address)]
	if !ok {
		return nil, nil
	}
	cp := tok.Clone()
	return &cp, nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error { return nil }
