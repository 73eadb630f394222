package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// cacheRule sets Cache-Control for GET paths accepted by match.
type cacheRule struct {
	match   func(path string) bool
	control string
}

func exact(paths ...string) func(string) bool {
	return func(p string) bool {
		for _, want := range paths {
			if p == want {
				return true
			}
		}
		return false
	}
}

func prefix(pre string) func(string) bool {
	return func(p string) bool { return strings.HasPrefix(p, pre) }
}

// cacheRules are checked in order; the first match wins.
var cacheRules = []cacheRule{
	{exact("/v1/health", "/v1/ready"), "public, max-age=10"},
	{exact("/metrics"), "no-store"},
	{exact("/graphql"), "private, max-age=0"},
	// The field set changes whenever a map session commits a drawing
	{exact("/v1/fields", "/v1/fields/bounds"), "public, max-age=30"},
	{prefix("/v1/fields/"), "public, max-age=120"},
	{prefix("/geo/"), "no-cache"},
	{prefix("/docs"), "public, max-age=3600"},
	{prefix("/v1/"), "public, max-age=300"},
}

// CachingMiddleware sets Cache-Control on GET responses that the handler
// left without one.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}

		path := c.Path()
		for _, r := range cacheRules {
			if r.match(path) {
				c.Set(fiber.HeaderCacheControl, r.control)
				break
			}
		}
		return err
	}
}
