package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	checkOK            = "ok"
	checkNotConfigured = "not configured"
)

// connectionChecker is implemented by event transports that can report
// broker connectivity.
type connectionChecker interface {
	IsConnected() bool
}

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		backend := "postgres"
		if deps.DB == nil {
			backend = "remote"
		}
		return c.JSON(fiber.Map{
			"status":        "healthy",
			"uptime":        time.Since(startedAt).String(),
			"version":       "dev",
			"field_backend": backend,
		})
	}
}

// ReadyHandler reports the field store, event broker and cache. A component
// that is not configured does not fail readiness: the remote backend needs no
// database and the API degrades without NATS or Valkey.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := map[string]string{
			"database": checkNotConfigured,
			"nats":     checkNotConfigured,
			"cache":    checkNotConfigured,
		}
		allOK := true
		record := func(name string, err error) {
			if err != nil {
				checks[name] = "error: " + err.Error()
				allOK = false
				return
			}
			checks[name] = checkOK
		}

		if deps.DB != nil {
			record("database", deps.DB.Pool.Ping(ctx))
		}
		if cc, ok := deps.Events.(connectionChecker); ok {
			if cc.IsConnected() {
				checks["nats"] = checkOK
			} else {
				checks["nats"] = "disconnected"
				allOK = false
			}
		}
		if deps.Cache != nil {
			record("cache", deps.Cache.Ping(ctx))
		}

		if !allOK {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
