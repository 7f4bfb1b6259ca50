package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/promptgrade-api/pkg/ai"
)

// ErrDispatchFailed reports that at least one oracle call in a batch failed.
var ErrDispatchFailed = errors.New("classification dispatch failed")

// Mode selects how oracle calls of a batch are scheduled.
type Mode string

const (
	// ModeConcurrent issues every call without waiting for the previous ones.
	ModeConcurrent Mode = "concurrent"
	// ModeSequential issues calls one at a time in question order.
	ModeSequential Mode = "sequential"
)

// RawAnswer is the unprocessed oracle label for one question.
type RawAnswer struct {
	QuestionIndex     int    `json:"question_index"`
	Question          string `json:"question"`
	RawClassification string `json:"raw_classification"`
}

// ProgressFunc is called after each completed oracle call.
type ProgressFunc func(done, total int)

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	// CallTimeout bounds a single oracle call. Zero disables the bound.
	CallTimeout time.Duration
	// ConcurrencyLimit caps in-flight calls in concurrent mode. Zero means unbounded.
	ConcurrencyLimit int
	Progress         ProgressFunc
}

// Dispatcher issues one oracle call per question for a prompt.
type Dispatcher struct {
	classifier ai.Classifier
	cfg        DispatcherConfig
}

// NewDispatcher wires the oracle into a dispatcher.
func NewDispatcher(classifier ai.Classifier, cfg DispatcherConfig) *Dispatcher {
	if classifier == nil {
		classifier = ai.UnavailableClassifier{}
	}
	return &Dispatcher{classifier: classifier, cfg: cfg}
}

// Dispatch classifies every question of the bank using prompt as instructions.
// The answers are returned in bank order. Any failing call fails the whole batch.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, bank *QuestionBank, mode Mode) ([]RawAnswer, error) {
	questions := bank.Questions()
	if len(questions) == 0 {
		return []RawAnswer{}, nil
	}

	var (
		answers []RawAnswer
		err     error
	)
	switch mode {
	case ModeSequential:
		answers, err = d.sequential(ctx, prompt, questions)
	default:
		answers, err = d.concurrent(ctx, prompt, questions)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	return answers, nil
}

func (d *Dispatcher) concurrent(ctx context.Context, prompt string, questions []Question) ([]RawAnswer, error) {
	answers := make([]RawAnswer, len(questions))
	group, groupCtx := errgroup.WithContext(ctx)
	if d.cfg.ConcurrencyLimit > 0 {
		group.SetLimit(d.cfg.ConcurrencyLimit)
	}

	var done atomic.Int64
	for i, question := range questions {
		group.Go(func() error {
			label, err := d.classify(groupCtx, prompt, question.Text)
			if err != nil {
				return fmt.Errorf("question %d: %w", i, err)
			}
			answers[i] = RawAnswer{QuestionIndex: i, Question: question.Text, RawClassification: label}
			d.report(int(done.Add(1)), len(questions))
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return answers, nil
}

func (d *Dispatcher) sequential(ctx context.Context, prompt string, questions []Question) ([]RawAnswer, error) {
	answers := make([]RawAnswer, 0, len(questions))
	for i, question := range questions {
		label, err := d.classify(ctx, prompt, question.Text)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		answers = append(answers, RawAnswer{QuestionIndex: i, Question: question.Text, RawClassification: label})
		d.report(i+1, len(questions))
	}
	return answers, nil
}

func (d *Dispatcher) classify(ctx context.Context, prompt, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()
	}

	result, err := d.classifier.Classify(ctx, ai.ClassificationInput{Instructions: prompt, Question: text})
	if err != nil {
		return "", err
	}
	return result.Label, nil
}

func (d *Dispatcher) report(done, total int) {
	if d.cfg.Progress != nil {
		d.cfg.Progress(done, total)
	}
}
