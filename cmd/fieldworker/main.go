package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/fieldmap/internal/adapters/geoapi"
	natsadapter "github.com/samirrijal/fieldmap/internal/adapters/nats"
	"github.com/samirrijal/fieldmap/internal/adapters/postgres"
	"github.com/samirrijal/fieldmap/internal/adapters/valkey"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
	"github.com/samirrijal/fieldmap/internal/pkg/config"
	"github.com/samirrijal/fieldmap/internal/pkg/logging"
	"github.com/samirrijal/fieldmap/internal/workflows"
)

func main() {
	cfg, err := config.Load("fieldmap-fieldworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	// Activities write to the same field store as the API
	var repo ports.FieldRepository
	switch cfg.Fields.Backend {
	case "remote":
		repo = geoapi.New(cfg.GeoAPI.BaseURL, cfg.GeoAPI.Token, cfg.GeoAPI.Timeout)
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		repo = postgres.NewFieldRepo(db)
	}

	// Persisting invalidates the list cache shared with the API
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.CreateFieldWorkflow)
	w.RegisterActivity(&workflows.FieldActivities{
		Fields: usecases.NewFieldService(repo, cacheSvc, pub),
	})

	slog.Info("field worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
