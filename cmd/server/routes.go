package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskflow/taskflow/internal/middleware"
)

// registerRoutes registers all HTTP routes
func registerRoutes(app *fiber.App, deps *Dependencies) {
	// Health check routes (no auth required)
	deps.HealthHandler.RegisterRoutes(app)

	// Prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Sync administration. Mutating routes share a Redis-backed rate limit.
	// No authentication: bind the server to an internal network.
	limit := middleware.RateLimit(deps.redisClient())
	deps.SyncHandler.RegisterRoutes(app, limit)
}
