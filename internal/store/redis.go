package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
)

// RedisStore keeps the snapshot in Redis. Every write is one SET with TTL;
// there is no cross-key transaction, so readers see either the old or the
// new snapshot, never a partial one.
type RedisStore struct {
	client *redis.Client
	cfg    Config
	logger zerolog.Logger
}

// Dial parses a Redis URL into a client. The URL shape is validated here;
// reachability is the caller's concern.
func Dial(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &errs.ConfigError{Field: "REDIS_URL", Reason: err.Error()}
	}
	return redis.NewClient(opts), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, cfg Config, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		cfg:    cfg.normalized(),
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// Put replaces the snapshot key and refreshes point-lookup keys for the
// first PerTokenKeys records. Any failure is fatal for the caller's tick.
func (s *RedisStore) Put(ctx context.Context, snap *models.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return &errs.CacheUnavailableError{Op: "put " + KeySnapshot, Err: err}
	}
	if err := s.client.Set(ctx, KeySnapshot, data, s.cfg.TTL).Err(); err != nil {
		return &errs.CacheUnavailableError{Op: "put " + KeySnapshot, Err: err}
	}

	limit := min(len(snap.Tokens), s.cfg.PerTokenKeys)
	for i := 0; i < limit; i++ {
		tok := &snap.Tokens[i]
		body, err := json.Marshal(tok)
		if err != nil {
			return &errs.CacheUnavailableError{Op: "put " + TokenKey(tok.Address), Err: err}
		}
		if err := s.client.Set(ctx, TokenKey(tok.Address), body, s.cfg.TTL).Err(); err != nil {
			return &errs.CacheUnavailableError{Op: "put " + TokenKey(tok.Address), Err: err}
		}
	}

	s.logger.Debug().Int("tokens", snap.Len()).Int("token_keys", limit).Msg("Snapshot written")
	return nil
}

// Get returns the current snapshot, (nil, nil) when the key is absent or
// expired, and (nil, err) on infrastructure failure. Callers treat both nil
// cases as a miss.
func (s *RedisStore) Get(ctx context.Context) (*models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, KeySnapshot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot read failed")
		return nil, &errs.CacheUnavailableError{Op: "get " + KeySnapshot, Err: err}
	}

	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot payload corrupt")
		return nil, &errs.CacheUnavailableError{Op: "decode " + KeySnapshot, Err: err}
	}
	return &snap, nil
}

// GetToken point-looks a token up by address, case-insensitively.
func (s *RedisStore) GetToken(ctx context.Context, address string) (*models.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	key := TokenKey(address)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Token read failed")
		return nil, &errs.CacheUnavailableError{Op: "get " + key, Err: err}
	}

	var tok models.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Token payload corrupt")
		return nil, &errs.CacheUnavailableError{Op: "decode " + key, Err: err}
	}
	return &tok, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
