package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samirrijal/fieldmap/internal/adapters/geoapi"
	natsadapter "github.com/samirrijal/fieldmap/internal/adapters/nats"
	"github.com/samirrijal/fieldmap/internal/adapters/valkey"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
	"github.com/samirrijal/fieldmap/internal/pkg/config"
	"github.com/samirrijal/fieldmap/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load("fieldmap-fieldsync")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fields owned by the remote geo service can change under us
	source := geoapi.New(cfg.GeoAPI.BaseURL, cfg.GeoAPI.Token, cfg.GeoAPI.Timeout)

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, cache will not be invalidated", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	sync := usecases.NewFieldSync(source, cacheSvc, pub)

	ticker := time.NewTicker(cfg.Sync.Interval)
	defer ticker.Stop()

	slog.Info("field sync started", "source", cfg.GeoAPI.BaseURL, "interval", cfg.Sync.Interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// First poll records the baseline
	poll(ctx, sync)

	for {
		select {
		case <-ticker.C:
			poll(ctx, sync)
		case <-ctx.Done():
			return
		case sig := <-quit:
			slog.Info("shutting down field sync", "signal", sig.String())
			cancel()
			return
		}
	}
}

func poll(ctx context.Context, sync *usecases.FieldSync) {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	res, err := sync.Poll(ctx)
	if err != nil {
		slog.Error("field sync poll failed", "error", err)
		return
	}
	if res.Created+res.Deleted > 0 {
		slog.Info("remote fields changed", "created", res.Created, "deleted", res.Deleted)
	}
}
