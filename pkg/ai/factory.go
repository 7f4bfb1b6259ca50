package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ProviderConfig selects and configures an oracle provider.
type ProviderConfig struct {
	Provider        string
	Model           string
	Seed            int
	MaxTokens       int
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	Logger          zerolog.Logger
}

// NewClassifier constructs the classifier for the configured provider.
func NewClassifier(ctx context.Context, cfg ProviderConfig) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIClassifier(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Seed:      cfg.Seed,
			Logger:    cfg.Logger,
		})
	case "anthropic":
		return NewAnthropicClassifier(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "gemini":
		return NewGeminiClassifier(ctx, GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Seed:      cfg.Seed,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

// ProviderName reports a short provider identifier for a classifier.
func ProviderName(c Classifier) string {
	switch c.(type) {
	case *OpenAIClassifier:
		return "openai"
	case *AnthropicClassifier:
		return "anthropic"
	case *GeminiClassifier:
		return "gemini"
	case UnavailableClassifier:
		return "unavailable"
	default:
		return "unknown"
	}
}
