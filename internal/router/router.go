package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/promptgrade-api/internal/config"
	"github.com/noah-isme/promptgrade-api/internal/handler"
	"github.com/noah-isme/promptgrade-api/internal/middleware"
	"github.com/noah-isme/promptgrade-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler  *handler.SubmissionHandler
	LeaderboardHandler *handler.LeaderboardHandler
	AdminHandler       *handler.AdminHandler
	// SubmitLimiter overrides the default submit rate limiter.
	SubmitLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	if deps.SubmissionHandler != nil {
		limiter := deps.SubmitLimiter
		if limiter == nil {
			limiter = middleware.RateLimit("submit", cfg.SubmitRatePerMinute, time.Minute)
		}
		deps.SubmissionHandler.Register(api.Group("/submissions"), limiter)
	}

	if deps.LeaderboardHandler != nil {
		deps.LeaderboardHandler.Register(api.Group("/leaderboard"))
	}

	if deps.AdminHandler != nil {
		admin := api.Group("/admin", middleware.AdminOnly(cfg.AdminJWTSecret)...)
		deps.AdminHandler.Register(admin)
	}
}
