package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/bootstrap"
	"github.com/noah-isme/promptgrade-api/internal/config"
	"github.com/noah-isme/promptgrade-api/internal/handler"
	"github.com/noah-isme/promptgrade-api/internal/middleware"
	"github.com/noah-isme/promptgrade-api/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	container, err := bootstrap.Build(context.Background(), cfg, logger, bootstrap.Options{
		Schedule: true,
		Source:   "promptgrade-api",
	})
	if err != nil {
		log.Fatalf("failed to initialise application: %v", err)
	}

	logger.Info().
		Str("oracle", container.Oracle).
		Str("database", cfg.DatabaseDriver).
		Str("worker_backend", cfg.WorkerBackend).
		Bool("redis", container.Redis != nil).
		Bool("nats", container.NATS != nil).
		Msg("application wired")

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// Quick evaluations hold the request open for a full batch of oracle calls.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler:  handler.NewSubmissionHandler(container.Submissions, logger),
		LeaderboardHandler: handler.NewLeaderboardHandler(container.Leaderboards, logger),
		AdminHandler:       handler.NewAdminHandler(container.Submissions, logger),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, container, logger)
}

func waitForShutdown(app *fiber.App, container *bootstrap.Container, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := container.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to release resources")
	}

	logger.Info().Msg("server stopped")
}
