package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic classifier.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// AnthropicClassifier implements Classifier with the Anthropic messages API.
// The API has no sampling seed, so determinism relies on temperature 0 alone.
type AnthropicClassifier struct {
	client *anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicClassifier constructs a classifier backed by the Anthropic SDK.
func NewAnthropicClassifier(cfg AnthropicConfig) (*AnthropicClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 64
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClassifier{client: &client, cfg: cfg}, nil
}

// Classify asks the model for a single label in the classification schema.
func (c *AnthropicClassifier) Classify(ctx context.Context, input ClassificationInput) (ClassificationResult, error) {
	return instrument(ctx, "anthropic", c.cfg.Model, func(ctx context.Context) (ClassificationResult, error) {
		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(c.cfg.Model),
			MaxTokens:   int64(c.cfg.MaxTokens),
			Temperature: anthropic.Float(0),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(input.Question)),
			},
			OutputConfig: anthropic.OutputConfigParam{
				Format: anthropic.JSONOutputFormatParam{
					Schema: labelSchemaDefinition(),
				},
			},
		}
		if input.Instructions != "" {
			params.System = []anthropic.TextBlockParam{{Text: input.Instructions}}
		}

		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return ClassificationResult{}, fmt.Errorf("anthropic classify: %w", err)
		}

		for _, block := range msg.Content {
			if block.Type != "text" {
				continue
			}
			label, err := ParseLabel(block.Text)
			if err != nil {
				return ClassificationResult{}, err
			}
			return ClassificationResult{Label: label, Model: string(msg.Model)}, nil
		}

		return ClassificationResult{}, &ErrInvalidResponse{Err: fmt.Errorf("no text content in anthropic response")}
	})
}
