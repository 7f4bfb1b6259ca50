package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/bootstrap"
	"github.com/noah-isme/promptgrade-api/internal/config"
	"github.com/noah-isme/promptgrade-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.WorkerBackend != "asynq" {
		log.Fatalf("worker requires PROMPTGRADE_WORKER_BACKEND=asynq, got %q", cfg.WorkerBackend)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "promptgrade-worker").Logger()

	container, err := bootstrap.Build(context.Background(), cfg, logger, bootstrap.Options{Source: "promptgrade-worker"})
	if err != nil {
		log.Fatalf("failed to initialise application: %v", err)
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to parse redis url: %v", err)
	}

	server := worker.NewAsynqServer(redisOpt, bootstrap.AsynqConfig(cfg), container.Submissions.Finalize, logger)
	if err := server.Start(); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}
	logger.Info().Str("oracle", container.Oracle).Msg("finalize worker started")

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-shutdownCtx.Done()

	server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := container.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to release resources")
	}
	logger.Info().Msg("worker stopped")
}
