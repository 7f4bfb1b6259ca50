package ai

import (
	"context"
	"errors"
	"fmt"
)

// DefaultSeed is sent to providers that support seeded sampling.
const DefaultSeed = 42

// ErrClassifierUnavailable indicates no oracle provider is configured.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// ClassificationInput pairs the submitted instructions with a single question.
type ClassificationInput struct {
	Instructions string
	Question     string
}

// ClassificationResult is the label returned by the oracle.
type ClassificationResult struct {
	Label string `json:"label"`
	Model string `json:"model"`
}

// Classifier maps an (instructions, question) pair to a short label.
type Classifier interface {
	Classify(ctx context.Context, input ClassificationInput) (ClassificationResult, error)
}

// ErrInvalidResponse wraps oracle payloads that do not match the label schema.
type ErrInvalidResponse struct {
	Content string
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid classification response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// UnavailableClassifier fails every call. It stands in when no provider key is set
// so submissions still complete with a fallback score.
type UnavailableClassifier struct{}

func (UnavailableClassifier) Classify(context.Context, ClassificationInput) (ClassificationResult, error) {
	return ClassificationResult{}, ErrClassifierUnavailable
}
