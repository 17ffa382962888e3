package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/api"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/broadcast"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/config"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/detect"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/eventsink"
	httpapi "github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/interfaces/http"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/merge"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/ratelimit"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/retry"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/scheduler"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/store"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/telemetry"
	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/upstream"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, opts *globalOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	zerolog.SetGlobalLevel(cfg.Level())
	logger := log.Logger

	metrics := telemetry.NewMetrics()
	sampler := telemetry.NewSampler(metrics, 0, logger)
	sampler.Start()
	defer sampler.Stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("Store close failed")
		}
	}()

	limiter, err := ratelimit.New(cfg.RateBudgets())
	if err != nil {
		return err
	}
	adapters := []upstream.Adapter{
		upstream.NewDexScreener(cfg.DexScreenerAdapter(), "", limiter, logger),
		upstream.NewCoinGecko(cfg.CoinGeckoAdapter(), limiter, logger),
	}

	var sink eventsink.Sink = eventsink.Noop{}
	if cfg.NATSURL != "" {
		natsSink, err := eventsink.DialNATS(eventsink.Config{URL: cfg.NATSURL}, logger)
		if err != nil {
			return fmt.Errorf("connect event sink: %w", err)
		}
		sink = natsSink
	}
	defer sink.Close()

	hub := broadcast.New(broadcast.Config{}, metrics, logger)
	defer hub.Close()

	sched := scheduler.New(scheduler.Config{
		Interval:     cfg.Scheduler.Interval.Std(),
		InitialDelay: cfg.Scheduler.InitialDelay.Std(),
	}, scheduler.Deps{
		Adapters: adapters,
		Retryer: retry.New(retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Std(),
		}, logger),
		Merger: merge.New(merge.Config{
			MaxTokens:    cfg.MaxTokens,
			DexSource:    upstream.TagDexScreener,
			MarketSource: upstream.TagCoinGecko,
		}),
		Store:       st,
		Detector:    detect.New(detect.DefaultThresholds(), logger),
		Broadcaster: hub,
		Sink:        sink,
		Metrics:     metrics,
		Logger:      logger,
	})

	handlers := httpapi.NewHandlers(httpapi.HandlerDeps{
		Service:            api.New(st, metrics, logger),
		Hub:                hub,
		Scheduler:          sched,
		Store:              st,
		Sampler:            sampler,
		Sink:               sink,
		Adapters:           adapters,
		Version:            version,
		SnapshotStaleAfter: cfg.Cache.TTL.Std(),
	}, logger)
	server := httpapi.NewServer(httpapi.Config{ListenAddr: cfg.ListenAddr}, handlers, metrics, logger)

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(schedCtx) }()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	logger.Info().
		Str("addr", cfg.ListenAddr).
		Str("cache_backend", cfg.Cache.Backend).
		Bool("event_sink", cfg.NATSURL != "").
		Str("version", version).
		Msg("Aggregator started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		stopScheduler()
		<-schedDone
		return fmt.Errorf("http server: %w", err)
	}

	// Drain HTTP first so no request observes a half-stopped pipeline.
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP drain did not finish cleanly")
	}

	// Stop the refresh loop. Run returns once any in-flight tick finishes.
	stopScheduler()
	if err := <-schedDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("Scheduler stopped with error")
	}

	logger.Info().Msg("Aggregator stopped")
	return nil
}

// openStore picks the snapshot store backend. Redis is dialed and pinged so
// a bad cache configuration fails the process at startup instead of on the
// first tick.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	storeCfg := store.Config{
		TTL:          cfg.Cache.TTL.Std(),
		PerTokenKeys: cfg.Cache.PerTokenKeys,
	}

	if cfg.Cache.Backend == config.BackendMemory {
		logger.Info().Msg("Using in-memory snapshot store")
		return store.NewMemory(storeCfg), nil
	}

	client, err := store.Dial(cfg.Cache.RedisURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return store.NewRedis(client, storeCfg, logger), nil
}
