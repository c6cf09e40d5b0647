package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/setshaba/mapdata/internal/pkg/metrics"
)

// requestTimeout bounds every REST handler. Refresh may wait on a slow
// upstream, so it gets longer.
const (
	requestTimeout = 15 * time.Second
	refreshTimeout = 60 * time.Second
)

// wardsSunset is when the /v1/wards alias goes away.
var wardsSunset = time.Date(2027, time.June, 30, 0, 0, 0, 0, time.UTC)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip); ward boundaries compress well
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
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
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Deprecated aliases
	app.Use(DeprecationMiddleware([]DeprecatedRoute{
		{Path: "/v1/wards", SunsetDate: wardsSunset, Alternative: "/v1/datasets/wards"},
	}))

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/datasets", timeout.NewWithContext(ListDatasetsHandler(deps), requestTimeout))
	v1.Get("/datasets/:name", timeout.NewWithContext(GetDatasetHandler(deps), requestTimeout))
	v1.Get("/datasets/:name/state", timeout.NewWithContext(DatasetStateHandler(deps), requestTimeout))
	v1.Post("/datasets/:name/refresh", timeout.NewWithContext(RefreshDatasetHandler(deps), refreshTimeout))
	v1.Get("/wards", timeout.NewWithContext(WardsHandler(deps), requestTimeout))
	v1.Get("/markers", timeout.NewWithContext(MarkersHandler(deps), requestTimeout))
	v1.Get("/categories", CategoriesHandler())
	v1.Get("/distance", DistanceHandler())

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app, DefaultSpecPath)

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/viewport", websocket.New(ViewportWebSocketHandler(deps)))
}
