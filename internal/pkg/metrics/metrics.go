package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldmap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Drawing session metrics
	PolygonsDrawn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "drawing",
		Name:      "polygons_drawn_total",
		Help:      "Total polygons committed by drawing sessions, by detection source",
	}, []string{"source"})

	DuplicateFinishEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "drawing",
		Name:      "duplicate_finish_events_total",
		Help:      "Finish notifications ignored because the shape was already committed",
	})

	DrawActivationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "drawing",
		Name:      "activation_failures_total",
		Help:      "Total failures activating the draw tool",
	})

	PolygonsCleared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "drawing",
		Name:      "polygons_cleared_total",
		Help:      "Total committed polygons removed from the surface",
	})

	// Viewport metrics
	TransitionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "viewport",
		Name:      "transitions_started_total",
		Help:      "Total camera transitions started",
	}, []string{"target"})

	TransitionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "viewport",
		Name:      "transitions_superseded_total",
		Help:      "Total transitions replaced by a newer request before completing",
	})

	TransitionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "viewport",
		Name:      "transition_fallbacks_total",
		Help:      "Total transitions that fell back to an instant fit",
	})

	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldmap",
		Subsystem: "viewport",
		Name:      "transition_duration_seconds",
		Help:      "Wall time from transition start to completion",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.8, 1, 1.5, 2, 5},
	}, []string{"target"})

	// Field metrics
	FieldsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "fields",
		Name:      "created_total",
		Help:      "Total fields created",
	}, []string{"status"})

	LegacyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "http",
		Name:      "legacy_requests_total",
		Help:      "Requests served by deprecated /geo routes",
	}, []string{"method", "route"})

	FieldSyncChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "fields",
		Name:      "sync_changes_total",
		Help:      "Field changes detected on the remote geo service",
	}, []string{"change"})

	ActiveMapSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldmap",
		Subsystem: "ws",
		Name:      "active_map_sessions",
		Help:      "Current number of connected map sessions",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldmap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldmap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldmap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldmap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "db",
		Name:      "pool_empty_acquires_total",
		Help:      "Total times a connection had to be established when acquiring from pool",
	})

	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldmap",
		Subsystem: "db",
		Name:      "pool_wait_count_total",
		Help:      "Total times waiting for a connection from pool",
	})

	DBPoolWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fieldmap",
		Subsystem: "db",
		Name:      "pool_wait_duration_seconds",
		Help:      "Duration waiting for a database connection",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// normalizePath reduces path cardinality for metrics by replacing IDs with :id.
func normalizePath(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready" || path == "/v1/fields" ||
		path == "/v1/fields/bounds" || path == "/graphql" || path == "/metrics":
		return path
	default:
		// /v1/fields/:id, /geo/polygons/:id, etc.
		return path // fiber already resolves to route pattern
	}
}

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		path = normalizePath(path)
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	// pgxpool.Stat has these fields:
	// AcquiredConns()  - connections currently in use
	// IdleConns()      - connections available
	// TotalConns()     - total connections
	// EmptyAcquireCount() - times a new connection was created
	// AcquireDuration() - total time spent acquiring connections
	// AcquireCount()   - total acquisitions
	// WaitCount()      - times waiting for a connection
	// WaitDuration()   - total wait time

	// Use reflection to avoid importing pgxpool directly into metrics package
	// This allows the metrics module to stay independent
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
