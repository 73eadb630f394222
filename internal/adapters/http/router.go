package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

// legacySunset is when the /geo/polygons aliases are removed.
var legacySunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness, no timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1, 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Get("/fields", timeout.NewWithContext(ListFieldsHandler(deps), 15*time.Second))
	v1.Post("/fields", timeout.NewWithContext(CreateFieldHandler(deps), 15*time.Second))
	v1.Get("/fields/bounds", timeout.NewWithContext(FieldsBoundsHandler(deps), 15*time.Second))
	v1.Get("/fields/:id", timeout.NewWithContext(GetFieldHandler(deps), 15*time.Second))
	v1.Delete("/fields/:id", timeout.NewWithContext(DeleteFieldHandler(deps), 15*time.Second))
	v1.Post("/geometry/measure", timeout.NewWithContext(MeasureHandler(), 15*time.Second))

	// Legacy polygon API, kept for existing map clients
	geo := app.Group("/geo", DeprecationMiddleware([]DeprecatedRoute{
		{Path: "/geo/polygons", SunsetDate: legacySunset, Alternative: "/v1/fields"},
		{Path: "/geo/polygons/:id", SunsetDate: legacySunset, Alternative: "/v1/fields/:id"},
	}))
	geo.Get("/polygons", timeout.NewWithContext(LegacyListPolygonsHandler(deps), 15*time.Second))
	geo.Post("/polygons", timeout.NewWithContext(LegacyCreatePolygonHandler(deps), 15*time.Second))
	geo.Get("/polygons/:id", timeout.NewWithContext(LegacyGetPolygonHandler(deps), 15*time.Second))
	geo.Delete("/polygons/:id", timeout.NewWithContext(LegacyDeletePolygonHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app, deps.OpenAPIPath)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/map", websocket.New(MapSessionHandler(deps)))
	app.Get("/ws/events", websocket.New(EventsHandler(deps)))
}
