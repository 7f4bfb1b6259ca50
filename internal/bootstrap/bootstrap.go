package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/promptgrade-api/internal/cache"
	"github.com/noah-isme/promptgrade-api/internal/config"
	"github.com/noah-isme/promptgrade-api/internal/database"
	"github.com/noah-isme/promptgrade-api/internal/evaluation"
	"github.com/noah-isme/promptgrade-api/internal/events"
	"github.com/noah-isme/promptgrade-api/internal/repository"
	"github.com/noah-isme/promptgrade-api/internal/service"
	"github.com/noah-isme/promptgrade-api/internal/storage"
	"github.com/noah-isme/promptgrade-api/internal/worker"
	"github.com/noah-isme/promptgrade-api/pkg/ai"
)

const (
	minUserLockTTL    = 2 * time.Minute
	userLockTTLMargin = 30 * time.Second
)

// userLockTTL covers a quick evaluation run in waves of the dispatch
// concurrency, each wave bounded by the call timeout.
func userLockTTL(cfg config.Config, quickSize int) time.Duration {
	waves := 1
	if cfg.DispatchConcurrency > 0 && quickSize > cfg.DispatchConcurrency {
		waves = (quickSize + cfg.DispatchConcurrency - 1) / cfg.DispatchConcurrency
	}
	ttl := time.Duration(waves)*cfg.AICallTimeout + userLockTTLMargin
	return max(ttl, minUserLockTTL)
}

// Options controls which background machinery Build starts.
type Options struct {
	// Schedule enables background finalization of accepted submissions.
	Schedule bool
	// Source names the process in emitted events.
	Source string
}

// Container holds the wired application graph.
type Container struct {
	Config config.Config
	Logger zerolog.Logger

	DB    *gorm.DB
	Redis *redis.Client
	NATS  *nats.Conn

	Oracle       string
	Evaluator    evaluation.Evaluator
	Banks        evaluation.Banks
	Scores       repository.ScoreRepository
	Leaderboards service.LeaderboardService
	Submissions  service.SubmissionService

	pool        *worker.Pool
	asynqClient *asynq.Client
}

// Build connects the stores and wires every service.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	c.DB = db

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			c.Close(ctx)
			return nil, err
		}
		c.Redis = client
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.NATS = natsConn

	banks, err := buildBanks(ctx, cfg)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.Banks = banks

	classifier := buildClassifier(ctx, cfg, logger)
	c.Oracle = ai.ProviderName(classifier)
	dispatcher := evaluation.NewDispatcher(classifier, evaluation.DispatcherConfig{
		CallTimeout:      cfg.AICallTimeout,
		ConcurrencyLimit: cfg.DispatchConcurrency,
	})
	c.Evaluator = evaluation.NewPipeline(dispatcher, logger)

	c.Scores = repository.NewScoreRepository(db)
	c.Leaderboards = service.NewLeaderboardService(c.Scores, c.Redis, cfg.LeaderboardCacheTTL, logger)

	var locker service.UserLocker = service.NewLocalUserLocker()
	if c.Redis != nil {
		locker = cache.NewRedisUserLocker(c.Redis, userLockTTL(cfg, banks.QuickSize), logger)
	}

	var publisher service.EventPublisher
	if c.NATS != nil || c.Redis != nil {
		publisher = events.NewPublisher(c.NATS, c.Redis, events.Config{
			SubjectPrefix: cfg.NATSPrefix,
			Source:        opts.Source,
		}, logger)
	}

	var submissions service.SubmissionService
	var scheduler worker.Scheduler
	if opts.Schedule {
		scheduler, err = c.buildScheduler(func(ctx context.Context, job worker.Job) error {
			return submissions.Finalize(ctx, job)
		})
		if err != nil {
			c.Close(ctx)
			return nil, err
		}
	}

	submissions = service.NewSubmissionService(service.SubmissionDeps{
		Scores:       c.Scores,
		Evaluator:    c.Evaluator,
		Banks:        banks,
		Scheduler:    scheduler,
		Locker:       locker,
		Leaderboards: c.Leaderboards,
		Events:       publisher,
		Validator:    validator.New(validator.WithRequiredStructEnabled()),
	}, cfg.MaxTries, logger)
	c.Submissions = submissions

	if c.pool != nil {
		c.pool.Start()
	}
	return c, nil
}

func (c *Container) buildScheduler(handler worker.Handler) (worker.Scheduler, error) {
	cfg := c.Config
	switch cfg.WorkerBackend {
	case "asynq":
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse asynq redis url: %w", err)
		}
		c.asynqClient = asynq.NewClient(redisOpt)
		return worker.NewAsynqScheduler(c.asynqClient, AsynqConfig(cfg), c.Logger), nil
	default:
		c.pool = worker.NewPool(handler, worker.PoolConfig{
			Workers:    cfg.WorkerConcurrency,
			QueueSize:  cfg.WorkerQueueSize,
			JobTimeout: cfg.WorkerJobTimeout,
		}, c.Logger)
		return c.pool, nil
	}
}

// AsynqConfig maps the worker settings onto the asynq scheduler and server.
func AsynqConfig(cfg config.Config) worker.AsynqConfig {
	return worker.AsynqConfig{
		MaxRetry:    cfg.WorkerMaxRetry,
		JobTimeout:  cfg.WorkerJobTimeout,
		Concurrency: cfg.WorkerConcurrency,
	}
}

func buildBanks(ctx context.Context, cfg config.Config) (evaluation.Banks, error) {
	var objects evaluation.ObjectGetter
	if cfg.UsesS3() {
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Region:    cfg.AWSRegion,
			Endpoint:  cfg.AWSEndpoint,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
		if err != nil {
			return evaluation.Banks{}, err
		}
		objects = client
	}

	quick, err := evaluation.SourceFromRef(cfg.QuickBankPath, objects)
	if err != nil {
		return evaluation.Banks{}, fmt.Errorf("quick bank: %w", err)
	}
	full, err := evaluation.SourceFromRef(cfg.FullBankPath, objects)
	if err != nil {
		return evaluation.Banks{}, fmt.Errorf("full bank: %w", err)
	}

	return evaluation.Banks{
		QuickSource: quick,
		FullSource:  full,
		QuickSize:   cfg.QuickBankSize,
		Delimiter:   cfg.BankDelimiter,
	}, nil
}

// buildClassifier never fails. A provider that cannot be configured yields a
// classifier whose calls always fail, so every evaluation is degraded.
func buildClassifier(ctx context.Context, cfg config.Config, logger zerolog.Logger) ai.Classifier {
	classifier, err := ai.NewClassifier(ctx, ai.ProviderConfig{
		Provider:        cfg.AIProvider,
		Model:           cfg.AIModel,
		Seed:            cfg.AISeed,
		MaxTokens:       cfg.AIMaxTokens,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		Logger:          logger,
	})
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.AIProvider).Msg("oracle unavailable, evaluations will be degraded")
		return ai.UnavailableClassifier{}
	}
	return classifier
}

// Close drains the worker pool and releases every connection.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.pool != nil {
		if err := c.pool.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
		}
	}
	if c.asynqClient != nil {
		if err := c.asynqClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close asynq client: %w", err))
		}
	}
	if c.NATS != nil {
		if err := c.NATS.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
