package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"github.com/samirrijal/fieldmap/internal/adapters/geoapi"
	"github.com/samirrijal/fieldmap/internal/adapters/http"
	natsadapter "github.com/samirrijal/fieldmap/internal/adapters/nats"
	"github.com/samirrijal/fieldmap/internal/adapters/postgres"
	"github.com/samirrijal/fieldmap/internal/adapters/valkey"
	"github.com/samirrijal/fieldmap/internal/core/domain"
	"github.com/samirrijal/fieldmap/internal/core/ports"
	"github.com/samirrijal/fieldmap/internal/core/usecases"
	"github.com/samirrijal/fieldmap/internal/pkg/config"
	"github.com/samirrijal/fieldmap/internal/pkg/logging"
	"github.com/samirrijal/fieldmap/internal/pkg/telemetry"
	"github.com/samirrijal/fieldmap/internal/workflows"
)

func main() {
	cfg, err := config.Load("fieldmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Field storage: local PostGIS or the remote geo service
	var repo ports.FieldRepository
	var db *postgres.DB
	switch cfg.Fields.Backend {
	case "remote":
		repo = geoapi.New(cfg.GeoAPI.BaseURL, cfg.GeoAPI.Token, cfg.GeoAPI.Timeout)
		slog.Info("fields served by remote geo API", "base_url", cfg.GeoAPI.BaseURL)
	default:
		db, err = postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		go db.CollectPoolStats(ctx, 15*time.Second)
		repo = postgres.NewFieldRepo(db)
	}

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Subscriber for the WebSocket relays
	var events ports.EventSubscriber
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats subscriber unavailable", "error", err)
	} else {
		defer sub.Close()
		events = sub
	}

	// Use cases
	fieldSvc := usecases.NewFieldService(repo, cacheSvc, publisher)

	var creator ports.FieldCreator = fieldSvc
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			slog.Warn("temporal unavailable, creating fields directly", "error", err)
		} else {
			defer tc.Close()
			creator = workflows.NewRunner(tc, cfg.Temporal.TaskQueue, fieldSvc)
			slog.Info("field creation routed through workflow", "task_queue", cfg.Temporal.TaskQueue)
		}
	}

	drawing := usecases.DefaultDrawingConfig()
	drawing.PollInterval = cfg.Drawing.PollInterval
	drawing.SnapToleranceMeters = cfg.Drawing.SnapToleranceMeters
	drawing.DrawEndSettle = cfg.Drawing.DrawEndSettle

	deps := &http.Dependencies{
		Fields:  fieldSvc,
		Creator: creator,
		Events:  events,
		MapSession: usecases.MapSessionDeps{
			Fields:    creator,
			Publisher: publisher,
			Drawing:   drawing,
			Viewport:  usecases.DefaultViewportConfig(),
		},
		Transition: domain.TransitionOptions{
			Duration:  cfg.Viewport.Duration,
			PaddingPx: cfg.Viewport.PaddingPx,
			MaxZoom:   cfg.Viewport.MaxZoom,
			Animate:   cfg.Viewport.Duration > 0,
		},
		DB:    db,
		Cache: cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Fieldmap API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "fields_backend", cfg.Fields.Backend)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
