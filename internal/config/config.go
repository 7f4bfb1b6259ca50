package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	NATSPrefix     string

	AIProvider      string
	AIModel         string
	AISeed          int
	AIMaxTokens     int
	AICallTimeout   time.Duration
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string

	DispatchConcurrency int

	FullBankPath  string
	QuickBankPath string
	QuickBankSize int
	BankDelimiter rune

	MaxTries int

	WorkerBackend     string
	WorkerConcurrency int
	WorkerQueueSize   int
	WorkerJobTimeout  time.Duration
	WorkerMaxRetry    int

	LeaderboardCacheTTL time.Duration
	AdminJWTSecret      string
	SubmitRatePerMinute int
	CORSAllowOrigins    string

	AWSRegion    string
	AWSEndpoint  string
	AWSAccessKey string
	AWSSecretKey string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UsesS3 reports whether any question bank is read from object storage.
func (c Config) UsesS3() bool {
	return strings.HasPrefix(c.FullBankPath, "s3://") || strings.HasPrefix(c.QuickBankPath, "s3://")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PROMPTGRADE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "PromptGrade API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8000")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "leaderboard.db")
	v.SetDefault("nats.subject_prefix", "promptgrade")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.seed", 42)
	v.SetDefault("ai.max_tokens", 64)
	v.SetDefault("ai.call_timeout", "30s")
	v.SetDefault("dispatch.concurrency", 0)
	v.SetDefault("bank.full_path", "data/test_questions.csv")
	v.SetDefault("bank.quick_path", "data/check_questions.csv")
	v.SetDefault("bank.quick_size", 20)
	v.SetDefault("bank.delimiter", ";")
	v.SetDefault("submission.max_tries", 5)
	v.SetDefault("worker.backend", "local")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_size", 256)
	v.SetDefault("worker.job_timeout", "10m")
	v.SetDefault("worker.max_retry", 3)
	v.SetDefault("leaderboard.cache_ttl", "30s")
	v.SetDefault("ratelimit.submit_per_minute", 10)
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("aws.region", "us-east-1")
}

func fromViper(v *viper.Viper) (Config, error) {
	delimiter := []rune(v.GetString("bank.delimiter"))
	if len(delimiter) != 1 {
		return Config{}, fmt.Errorf("bank delimiter must be a single character, got %q", v.GetString("bank.delimiter"))
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseDriver:      strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		NATSPrefix:          v.GetString("nats.subject_prefix"),
		AIProvider:          strings.ToLower(v.GetString("ai.provider")),
		AIModel:             v.GetString("ai.model"),
		AISeed:              v.GetInt("ai.seed"),
		AIMaxTokens:         v.GetInt("ai.max_tokens"),
		AICallTimeout:       v.GetDuration("ai.call_timeout"),
		OpenAIAPIKey:        firstNonEmpty(v.GetString("openai.api_key"), v.GetString("openai_api_key")),
		OpenAIBaseURL:       v.GetString("openai.base_url"),
		AnthropicAPIKey:     firstNonEmpty(v.GetString("anthropic.api_key"), v.GetString("anthropic_api_key")),
		GeminiAPIKey:        firstNonEmpty(v.GetString("gemini.api_key"), v.GetString("gemini_api_key")),
		DispatchConcurrency: v.GetInt("dispatch.concurrency"),
		FullBankPath:        v.GetString("bank.full_path"),
		QuickBankPath:       v.GetString("bank.quick_path"),
		QuickBankSize:       v.GetInt("bank.quick_size"),
		BankDelimiter:       delimiter[0],
		MaxTries:            v.GetInt("submission.max_tries"),
		WorkerBackend:       strings.ToLower(v.GetString("worker.backend")),
		WorkerConcurrency:   v.GetInt("worker.concurrency"),
		WorkerQueueSize:     v.GetInt("worker.queue_size"),
		WorkerJobTimeout:    v.GetDuration("worker.job_timeout"),
		WorkerMaxRetry:      v.GetInt("worker.max_retry"),
		LeaderboardCacheTTL: v.GetDuration("leaderboard.cache_ttl"),
		AdminJWTSecret:      v.GetString("admin.jwt_secret"),
		SubmitRatePerMinute: v.GetInt("ratelimit.submit_per_minute"),
		CORSAllowOrigins:    v.GetString("cors.allow_origins"),
		AWSRegion:           v.GetString("aws.region"),
		AWSEndpoint:         v.GetString("aws.endpoint"),
		AWSAccessKey:        v.GetString("aws.access_key"),
		AWSSecretKey:        v.GetString("aws.secret_key"),
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	switch cfg.WorkerBackend {
	case "local":
	case "asynq":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("worker backend asynq requires a redis url")
		}
	default:
		return Config{}, fmt.Errorf("unsupported worker backend %q", cfg.WorkerBackend)
	}

	if cfg.MaxTries <= 0 {
		return Config{}, fmt.Errorf("submission max tries must be positive")
	}
	if cfg.QuickBankSize < 0 {
		cfg.QuickBankSize = 0
	}
	if cfg.AICallTimeout <= 0 {
		cfg.AICallTimeout = 30 * time.Second
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
