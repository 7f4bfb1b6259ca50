package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini classifier.
type GeminiConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Seed      int
}

// GeminiClassifier implements Classifier with the Google Gen AI SDK.
type GeminiClassifier struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiClassifier creates the Gen AI client once; it is safe for concurrent use.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 64
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClassifier{client: client, cfg: cfg}, nil
}

// Classify requests a JSON label with zero temperature and a fixed seed.
func (c *GeminiClassifier) Classify(ctx context.Context, input ClassificationInput) (ClassificationResult, error) {
	return instrument(ctx, "gemini", c.cfg.Model, func(ctx context.Context) (ClassificationResult, error) {
		temperature := float32(0)
		seed := int32(c.cfg.Seed)
		config := &genai.GenerateContentConfig{
			MaxOutputTokens:  int32(c.cfg.MaxTokens),
			Temperature:      &temperature,
			Seed:             &seed,
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"response": {Type: genai.TypeString},
				},
				Required: []string{"response"},
			},
		}
		if input.Instructions != "" {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: input.Instructions}}}
		}

		contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: input.Question}}}}
		result, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
		if err != nil {
			return ClassificationResult{}, fmt.Errorf("gemini classify: %w", err)
		}

		label, err := ParseLabel(result.Text())
		if err != nil {
			return ClassificationResult{}, err
		}
		return ClassificationResult{Label: label, Model: c.cfg.Model}, nil
	})
}
