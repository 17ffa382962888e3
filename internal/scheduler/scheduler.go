// Package scheduler drives the periodic refresh: fetch every upstream,
// merge, publish the snapshot, diff it and hand the events off.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/errs"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/eventsink"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/merge"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/models"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/retry"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/store"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/telemetry"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/upstream"
)

// Broadcaster receives the event batch produced by each tick.
type Broadcaster interface {
	Broadcast(events []models.Event)
}

// Config times the refresh loop.
type Config struct {
	// Interval is the tick cadence.
	Interval time.Duration
	// InitialDelay postpones the first tick just long enough for the
	// process to finish starting.
	InitialDelay time.Duration
	// TickTimeout bounds one whole tick, shutdown included: a graceful
	// stop waits for the in-flight tick up to this long.
	TickTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 30 * time.Second
	}
	return c
}

// Deps are the collaborators a Scheduler coordinates.
type Deps struct {
	Adapters    []upstream.Adapter
	Retryer     *retry.Retryer
	Merger      *merge.Merger
	Store       store.Store
	Detector    Detector
	Broadcaster Broadcaster
	Sink        eventsink.Sink
	Metrics     *telemetry.Metrics
	Logger      zerolog.Logger
}

// Detector diffs two snapshots into an event batch.
type Detector interface {
	Detect(previous, current *models.Snapshot) []models.Event
}

// Status is a point-in-time view for the health endpoint.
type Status struct {
	Running        bool      `json:"running"`
	Ticks          uint64    `json:"ticks"`
	LastTick       time.Time `json:"last_tick"`
	LastTickResult string    `json:"last_tick_result,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
}

// Scheduler owns the refresh loop. Ticks are single-flight: a tick landing
// while the previous one still runs is skipped, not queued.
type Scheduler struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup

	mu       sync.Mutex
	started  time.Time
	running  bool
	ticks    uint64
	lastTick time.Time
	lastRes  string
	lastErr  string
}

// New creates a scheduler. Deps.Sink may be nil, which disables mirroring;
// Deps.Metrics may be nil.
func New(cfg Config, deps Deps) *Scheduler {
	if deps.Sink == nil {
		deps.Sink = eventsink.Noop{}
	}
	return &Scheduler{
		cfg:  cfg.normalized(),
		deps: deps,
		log:  deps.Logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is cancelled. The loop itself never fails: per-tick
// errors are logged and the next tick starts fresh. On shutdown the
// in-flight tick is allowed to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.running = true
	s.mu.Unlock()

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("initial_delay", s.cfg.InitialDelay).
		Int("upstreams", len(s.deps.Adapters)).
		Msg("Scheduler starting")

	defer func() {
		s.wg.Wait()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.log.Info().Msg("Scheduler stopped")
	}()

	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-initial.C:
		s.spawnTick()
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.spawnTick()
		}
	}
}

// Status reports loop health for the health endpoint.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:        s.running,
		Ticks:          s.ticks,
		LastTick:       s.lastTick,
		LastTickResult: s.lastRes,
		LastError:      s.lastErr,
	}
	if s.running {
		st.UptimeSeconds = time.Since(s.started).Seconds()
	}
	return st
}

func (s *Scheduler) spawnTick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Warn().Msg("Previous tick still running, skipping")
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordTickSkipped()
		}
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.tick()
	}()
}

// tick runs one refresh pass. It deliberately runs on its own context so a
// process shutdown does not abort work in progress.
func (s *Scheduler) tick() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()

	lists, failures := s.fetchAll(ctx)

	if len(failures) == len(s.deps.Adapters) {
		err := &errs.PartialFailureError{Failed: failures}
		s.log.Error().Err(err).Msg("All upstreams failed, tick aborted")
		s.finishTick(start, "aborted", err)
		return
	}

	result := "success"
	if len(failures) > 0 {
		succeeded := make([]string, 0, len(lists))
		for _, a := range s.deps.Adapters {
			if _, failed := failures[a.Tag()]; !failed {
				succeeded = append(succeeded, a.Tag())
			}
		}
		result = "partial"
		s.log.Warn().
			Err(&errs.PartialFailureError{Failed: failures, Succeeded: succeeded}).
			Msg("Tick degraded to surviving upstreams")
	}

	previous := s.previousSnapshot(ctx)
	snap := s.deps.Merger.Merge(lists...)

	if err := s.deps.Store.Put(ctx, snap); err != nil {
		s.log.Error().Err(err).Msg("Snapshot write failed, tick aborted")
		s.finishTick(start, "aborted", err)
		return
	}

	events := s.deps.Detector.Detect(previous, snap)
	s.deps.Broadcaster.Broadcast(events)
	s.deps.Sink.PublishEvents(events)
	s.deps.Sink.PublishSnapshot(snap)

	if s.deps.Metrics != nil {
		s.deps.Metrics.SnapshotTokens.Set(float64(snap.Len()))
	}
	s.finishTick(start, result, nil)

	s.log.Info().
		Str("result", result).
		Int("tokens", snap.Len()).
		Int("events", len(events)).
		Dur("duration", time.Since(start)).
		Msg("Tick completed")
}

// fetchAll forks one fetch per upstream and awaits all of them. Each fetch
// carries its own retry budget; a failure after retries marks only that
// upstream failed.
func (s *Scheduler) fetchAll(ctx context.Context) ([][]models.Token, map[string]error) {
	var (
		mu       sync.Mutex
		lists    = make([][]models.Token, 0, len(s.deps.Adapters))
		failures = make(map[string]error)
		wg       sync.WaitGroup
	)

	for _, adapter := range s.deps.Adapters {
		wg.Add(1)
		go func(a upstream.Adapter) {
			defer wg.Done()

			fetchStart := time.Now()
			var tokens []models.Token
			err := s.deps.Retryer.Do(ctx, "fetch "+a.Tag(), func(ctx context.Context) error {
				var ferr error
				tokens, ferr = a.Fetch(ctx)
				return ferr
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[a.Tag()] = err
				if s.deps.Metrics != nil {
					s.deps.Metrics.RecordFetchError(a.Tag(), failureReason(err))
					if errs.IsRateLimited(err) {
						s.deps.Metrics.RecordRateLimited(a.Tag())
					}
				}
				s.log.Warn().Err(err).Str("upstream", a.Tag()).Msg("Upstream failed for this tick")
				return
			}
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordFetch(a.Tag(), time.Since(fetchStart))
			}
			lists = append(lists, tokens)
			s.log.Debug().Str("upstream", a.Tag()).Int("tokens", len(tokens)).Msg("Upstream fetched")
		}(adapter)
	}

	wg.Wait()
	return lists, failures
}

// previousSnapshot loads the outgoing snapshot for diffing. Any read
// problem means alerting is skipped for one tick, nothing worse.
func (s *Scheduler) previousSnapshot(ctx context.Context) *models.Snapshot {
	prev, err := s.deps.Store.Get(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Previous snapshot unavailable, diffing from scratch")
		return nil
	}
	return prev
}

func (s *Scheduler) finishTick(start time.Time, result string, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTick(result, time.Since(start))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	s.lastTick = time.Now()
	s.lastRes = result
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
}

func failureReason(err error) string {
	switch {
	case errs.IsRateLimited(err):
		return "rate_limited"
	case errs.IsConfig(err):
		return "config"
	case errs.IsValidation(err):
		return "validation"
	default:
		return "transport"
	}
}
