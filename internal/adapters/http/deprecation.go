package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

// DeprecatedRoute marks an endpoint as deprecated with sunset date.
type DeprecatedRoute struct {
	Path        string    // Route pattern, ":name" segments match any value
	SunsetDate  time.Time // Date when endpoint will be removed
	Alternative string    // Successor endpoint (optional)
}

// DeprecationMiddleware adds Deprecation, Sunset, Link and Warning headers to
// requests for deprecated routes and counts their use per route pattern.
func DeprecationMiddleware(deprecated []DeprecatedRoute) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, d := range deprecated {
			if !matchPattern(path, d.Path) {
				continue
			}

			c.Set("Deprecation", "true")
			c.Set("Sunset", d.SunsetDate.UTC().Format(time.RFC1123))
			if d.Alternative != "" {
				alt := d.Alternative
				if id := lastSegment(path); strings.HasSuffix(alt, "/:id") {
					alt = strings.TrimSuffix(alt, ":id") + id
				}
				c.Set("Link", fmt.Sprintf(`<%s>; rel="successor-version"`, alt))
			}
			days := time.Until(d.SunsetDate).Hours() / 24
			c.Set("Warning", fmt.Sprintf(`299 - "Deprecated API, will sunset in %.0f days"`, days))

			metrics.LegacyRequests.WithLabelValues(c.Method(), d.Path).Inc()
			break
		}
		return c.Next()
	}
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, "/")
	return path[strings.LastIndex(path, "/")+1:]
}

// matchPattern matches path against a route pattern segment by segment, with
// ":name" segments matching any single non-empty segment.
// "/geo/polygons/:id" matches "/geo/polygons/abc-123".
func matchPattern(path, pattern string) bool {
	if path == pattern {
		return true
	}

	ps := strings.Split(strings.Trim(path, "/"), "/")
	pp := strings.Split(strings.Trim(pattern, "/"), "/")
	if len(ps) != len(pp) {
		return false
	}
	for i, seg := range pp {
		if strings.HasPrefix(seg, ":") {
			if ps[i] == "" {
				return false
			}
			continue
		}
		if seg != ps[i] {
			return false
		}
	}
	return true
}
