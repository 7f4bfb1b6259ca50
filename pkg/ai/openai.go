package ai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig defines configuration options for the OpenAI classifier.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Seed      int
	Logger    zerolog.Logger
}

// OpenAIClassifier implements Classifier against the OpenAI chat completion API.
type OpenAIClassifier struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger zerolog.Logger
}

// NewOpenAIClassifier builds a new classifier using the provided configuration.
func NewOpenAIClassifier(cfg OpenAIConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 64
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "openai_classifier").Logger(),
	}, nil
}

// Classify sends the instructions as the system message and the question as the user message.
func (c *OpenAIClassifier) Classify(ctx context.Context, input ClassificationInput) (ClassificationResult, error) {
	return instrument(ctx, "openai", c.cfg.Model, func(ctx context.Context) (ClassificationResult, error) {
		seed := c.cfg.Seed
		request := openai.ChatCompletionRequest{
			Model:     c.cfg.Model,
			MaxTokens: c.cfg.MaxTokens,
			// go-openai drops a zero temperature from the payload, which the API reads as 1.
			Temperature: math.SmallestNonzeroFloat32,
			Seed:        &seed,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: input.Instructions},
				{Role: openai.ChatMessageRoleUser, Content: input.Question},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   labelSchemaName,
					Schema: LabelSchema(),
					Strict: true,
				},
			},
		}

		resp, err := c.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return ClassificationResult{}, fmt.Errorf("openai classify: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ClassificationResult{}, &ErrInvalidResponse{Err: fmt.Errorf("no choices returned from openai")}
		}

		label, err := ParseLabel(strings.TrimSpace(resp.Choices[0].Message.Content))
		if err != nil {
			return ClassificationResult{}, err
		}

		c.logger.Debug().Str("label", label).Int("total_tokens", resp.Usage.TotalTokens).Msg("classification received")
		return ClassificationResult{Label: label, Model: resp.Model}, nil
	})
}
