package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/noise-to-signal/internal/config"
	"github.com/DeafMist/noise-to-signal/internal/elasticsearch"
	"github.com/DeafMist/noise-to-signal/internal/logger"
	"github.com/DeafMist/noise-to-signal/internal/store"
)

type indexPurger interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

type storePurger interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := connect(ctx, log, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = esClient.EnsureIndex(indexCtx)
	cancel()
	if err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	events, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Error("open store", slog.Any("err", err))
		os.Exit(1)
	}
	defer events.Close()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	// Run immediately on start; a failed run is retried on the next tick.
	runOnce(ctx, log, esClient, events, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, events, cfg)
		}
	}
}

// connect pings Elasticsearch with exponential backoff capped at 30s.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Retention) (*elasticsearch.Client, error) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	var lastErr error
	for i := range maxRetries {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = esClient.Ping(pingCtx)
			cancel()
			if err == nil {
				return esClient, nil
			}
		}
		lastErr = err
		log.Warn("elasticsearch unavailable, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}
	return nil, lastErr
}

// runOnce purges old analyses from the search index and old raw texts (with
// their events) from the store. A failure in one does not skip the other.
func runOnce(ctx context.Context, log *slog.Logger, index indexPurger, events storePurger, cfg *config.Retention) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := index.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("index retention failed (will retry on next interval)", slog.Any("err", err))
	} else {
		log.Info("index retention completed", slog.Int64("deleted", deleted))
	}

	purged, err := events.DeleteOlderThan(subCtx, cfg.MaxAge)
	if err != nil {
		log.Warn("store retention failed (will retry on next interval)", slog.Any("err", err))
		return
	}
	if purged > 0 {
		log.Info("store retention completed", slog.Int64("deleted", purged))
	} else {
		log.Debug("store retention completed, nothing to purge")
	}
}
