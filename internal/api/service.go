// Package api implements the read side: filtered, sorted, paginated views
// over the latest snapshot.
package api

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/store"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/telemetry"
)

// ErrNoSnapshot means no tick has published data yet, or the cache lost it.
var ErrNoSnapshot = errors.New("api: no snapshot available")

// ErrNotFound means the snapshot is live but does not carry the address.
var ErrNotFound = errors.New("api: token not found")

// Sort columns accepted by get_all.
const (
	SortVolume           = "volume"
	SortPriceChange      = "price_change"
	SortMarketCap        = "market_cap"
	SortLiquidity        = "liquidity"
	SortTransactionCount = "transaction_count"
)

// Time periods accepted by get_all. A period excludes records that carry no
// change figure for that window; SevenDays has no column and filters nothing.
const (
	PeriodHour     = "1h"
	PeriodDay      = "24h"
	PeriodSevenDay = "7d"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Query is the filter, sort and pagination envelope for get_all.
type Query struct {
	MinLiquidity float64
	MinVolume    float64
	Protocol     string
	TimePeriod   string
	SortBy       string
	SortOrder    string
	Limit        int
	Cursor       int
}

func (q Query) normalized() Query {
	if q.SortBy == "" {
		q.SortBy = SortVolume
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return q
}

func (q Query) validate() error {
	switch q.SortBy {
	case SortVolume, SortPriceChange, SortMarketCap, SortLiquidity, SortTransactionCount:
	default:
		return &errs.ValidationError{Field: "sort_by", Reason: "unknown sort column " + q.SortBy}
	}
	switch q.SortOrder {
	case "asc", "desc":
	default:
		return &errs.ValidationError{Field: "sort_order", Reason: "must be asc or desc"}
	}
	switch q.TimePeriod {
	case "", PeriodHour, PeriodDay, PeriodSevenDay:
	default:
		return &errs.ValidationError{Field: "time_period", Reason: "must be 1h, 24h or 7d"}
	}
	if q.MinLiquidity < 0 {
		return &errs.ValidationError{Field: "min_liquidity", Reason: "must not be negative"}
	}
	if q.MinVolume < 0 {
		return &errs.ValidationError{Field: "min_volume", Reason: "must not be negative"}
	}
	if q.Limit < 0 {
		return &errs.ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	if q.Cursor < 0 {
		return &errs.ValidationError{Field: "cursor", Reason: "must not be negative"}
	}
	return nil
}

// Page is one get_all result window.
type Page struct {
	Tokens     []models.Token `json:"tokens"`
	NextCursor *int           `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
	TotalCount int            `json:"total_count"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Service answers read queries from the snapshot store.
type Service struct {
	store   store.Store
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

// New creates a read service. metrics may be nil.
func New(st store.Store, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:   st,
		metrics: metrics,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// GetAll filters, sorts and pages the current snapshot. TotalCount counts
// the filtered set, not the page.
func (s *Service) GetAll(ctx context.Context, q Query) (*Page, error) {
	q = q.normalized()
	if err := q.validate(); err != nil {
		return nil, err
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	filtered := filterTokens(snap.Tokens, q)
	sortTokens(filtered, q.SortBy, q.SortOrder)

	total := len(filtered)
	start := q.Cursor
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	page := &Page{
		Tokens:     filtered[start:end],
		HasMore:    end < total,
		TotalCount: total,
		Timestamp:  snap.UpdatedAt,
	}
	if page.HasMore {
		next := end
		page.NextCursor = &next
	}
	return page, nil
}

// GetByAddress resolves one token, case-insensitively. It tries the
// per-token cache first and falls back to scanning the snapshot; a cache
// read failure on the fast path only downgrades to the fallback.
func (s *Service) GetByAddress(ctx context.Context, address string) (*models.Token, error) {
	if strings.TrimSpace(address) == "" {
		return nil, &errs.ValidationError{Field: "address", Reason: "must not be empty"}
	}

	tok, err := s.store.GetToken(ctx, address)
	if err != nil {
		s.logger.Warn().Err(err).Str("address", address).Msg("Token lookup degraded to snapshot scan")
	}
	if tok != nil {
		s.recordCache("token", true)
		return tok, nil
	}
	s.recordCache("token", false)

	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if found, ok := snap.Find(address); ok {
		return &found, nil
	}
	return nil, ErrNotFound
}

// snapshot loads the current snapshot or classifies its absence.
func (s *Service) snapshot(ctx context.Context) (*models.Snapshot, error) {
	snap, err := s.store.Get(ctx)
	if err != nil {
		s.recordCache("snapshot", false)
		return nil, err
	}
	if snap == nil {
		s.recordCache("snapshot", false)
		return nil, ErrNoSnapshot
	}
	s.recordCache("snapshot", true)
	return snap, nil
}

func (s *Service) recordCache(lookup string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(lookup)
	} else {
		s.metrics.RecordCacheMiss(lookup)
	}
}

func filterTokens(tokens []models.Token, q Query) []models.Token {
	protocol := strings.ToLower(strings.TrimSpace(q.Protocol))

	out := make([]models.Token, 0, len(tokens))
	for i := range tokens {
		t := tokens[i]
		if t.Liquidity < q.MinLiquidity {
			continue
		}
		if t.Volume24h < q.MinVolume {
			continue
		}
		if protocol != "" && !strings.Contains(strings.ToLower(t.Dex), protocol) {
			continue
		}
		switch q.TimePeriod {
		case PeriodHour:
			if t.Change1h == 0 {
				continue
			}
		case PeriodDay:
			if t.Change24h == 0 {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func sortTokens(tokens []models.Token, by, order string) {
	key := sortKey(by)
	desc := order != "asc"

	sort.SliceStable(tokens, func(i, j int) bool {
		a, b := key(&tokens[i]), key(&tokens[j])
		if a == b {
			return tokens[i].Address < tokens[j].Address
		}
		if desc {
			return a > b
		}
		return a < b
	})
}

func sortKey(by string) func(*models.Token) float64 {
	switch by {
	case SortPriceChange:
		return func(t *models.Token) float64 { return t.ChangePct24h }
	case SortMarketCap:
		return func(t *models.Token) float64 { return t.MarketCap }
	case SortLiquidity:
		return func(t *models.Token) float64 { return t.Liquidity }
	case SortTransactionCount:
		return func(t *models.Token) float64 { return float64(t.TransactionCount24h) }
	default:
		return func(t *models.Token) float64 { return t.Volume24h }
	}
}
