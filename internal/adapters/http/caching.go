package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Handlers that set their own header win.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet {
			return err
		}
		if len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}

		path := c.Path()
		status := c.Response().StatusCode()
		var ttl string

		switch {
		case status >= 400:
			ttl = "no-store" // Errors and 503 while loading must not stick

		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"

		case path == "/metrics":
			ttl = "no-cache"

		case strings.HasSuffix(path, "/state"):
			ttl = "no-cache"

		case path == "/v1/wards" || strings.HasPrefix(path, "/v1/datasets/"):
			ttl = "public, max-age=3600" // Boundaries change rarely

		case path == "/v1/markers":
			ttl = "public, max-age=60" // Reports change often

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=300"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}

		return err
	}
}
