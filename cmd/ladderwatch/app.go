package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryanbastic/go-ladderwatch/internal/blizzard"
	"github.com/ryanbastic/go-ladderwatch/internal/config"
	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/metrics"
	"github.com/ryanbastic/go-ladderwatch/internal/storage"
	"github.com/ryanbastic/go-ladderwatch/internal/update"
	"github.com/ryanbastic/go-ladderwatch/internal/watermark"
)

// app holds the wired components shared by the subcommands.
type app struct {
	pool         *pgxpool.Pool
	store        *storage.PostgresStore
	writer       *storage.Writer
	tracker      *watermark.Tracker
	orchestrator *update.Orchestrator
	frames       map[string]time.Duration
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	regions, err := config.ResolveRegions(cfg.RegionsConfigPath)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")

	if err := storage.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	wmStore := watermark.NewPostgresStore(pool)
	if err := wmStore.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate watermarks: %w", err)
	}
	logger.Info("migrations complete")

	tracker := watermark.NewTracker(wmStore)
	ladderMetrics := metrics.NewLadder(prometheus.DefaultRegisterer)
	prometheus.MustRegister(
		metrics.NewPoolCollector(map[string]*pgxpool.Pool{"ladderwatch": pool}),
		metrics.NewWatermarkCollector(tracker),
	)

	baseURLs := make(map[ladder.Region]string, len(regions))
	for _, r := range regions {
		baseURLs[r.Region] = r.BaseURL
	}
	httpClient := blizzard.NewHTTPClient(context.Background(), cfg.ClientID, cfg.ClientSecret, cfg.TokenURL,
		cfg.ConnectTimeout, cfg.IOTimeout)
	client := blizzard.NewClient(blizzard.Options{
		BaseURLs:           baseURLs,
		ConnectTimeout:     cfg.ConnectTimeout,
		IOTimeout:          cfg.IOTimeout,
		RetryMax:           cfg.RetryMax,
		RetryMinBackoff:    cfg.RetryMinBackoff,
		RetryMaxBackoff:    cfg.RetryMaxBackoff,
		RequestsPerSecond:  cfg.RequestsPerSecond,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerReset:       cfg.BreakerReset,
		HTTPClient:         httpClient,
		Metrics:            ladderMetrics,
		Logger:             logger,
	})
	if cfg.ClientID == "" {
		logger.Warn("no upstream client credentials configured, requests are unauthenticated")
	}

	store := storage.NewPostgresStore(pool, cfg.QueryTimeout)
	writer := storage.NewWriter(cfg.WriteQueueSize, logger)

	opts := update.OptionsFromConfig(cfg, regions)
	orch := update.New(opts, update.Deps{
		Seasons:    blizzard.NewSeasonProbe(client, cfg.FirstSeason, logger),
		Ladders:    blizzard.NewLadderFetcher(client, cfg.LadderConcurrency, logger),
		Matches:    blizzard.NewMatchFetcher(client, cfg.MatchConcurrency, ladderMetrics, logger),
		Store:      store,
		Maintainer: store,
		Tracker:    tracker,
		Writer:     writer,
		Metrics:    ladderMetrics,
		Logger:     logger,
	})

	return &app{
		pool:         pool,
		store:        store,
		writer:       writer,
		tracker:      tracker,
		orchestrator: orch,
		frames:       opts.Frames(),
	}, nil
}

// Close drains pending writes before closing the pool.
func (a *app) Close() {
	a.writer.Close()
	a.pool.Close()
}
