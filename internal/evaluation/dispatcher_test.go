package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promptgrade-api/pkg/ai"
)

type stubClassifier struct {
	labels map[string]string
	delays map[string]time.Duration
	failOn string
	calls  atomic.Int64

	mu      sync.Mutex
	prompts []string
}

func (s *stubClassifier) Classify(ctx context.Context, input ai.ClassificationInput) (ai.ClassificationResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.prompts = append(s.prompts, input.Instructions)
	s.mu.Unlock()

	if delay := s.delays[input.Question]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ai.ClassificationResult{}, ctx.Err()
		}
	}
	if input.Question == s.failOn {
		return ai.ClassificationResult{}, errors.New("oracle unavailable")
	}
	return ai.ClassificationResult{Label: s.labels[input.Question], Model: "stub"}, nil
}

func numberedBank(n int) (*QuestionBank, map[string]string) {
	questions := make([]Question, 0, n)
	labels := make(map[string]string, n)
	categories := []string{"math", "geo", "history", "science"}
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("question-%02d", i)
		questions = append(questions, Question{Text: text, ExpectedLabel: categories[i%len(categories)]})
		labels[text] = categories[(i/3)%len(categories)]
	}
	return NewQuestionBank(questions), labels
}

func TestDispatchConcurrentPreservesInputOrder(t *testing.T) {
	bank, labels := numberedBank(8)
	delays := map[string]time.Duration{}
	for i := 0; i < 8; i++ {
		delays[fmt.Sprintf("question-%02d", i)] = time.Duration(8-i) * 5 * time.Millisecond
	}
	classifier := &stubClassifier{labels: labels, delays: delays}

	var progress []int
	var mu sync.Mutex
	dispatcher := NewDispatcher(classifier, DispatcherConfig{Progress: func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, 8, total)
		progress = append(progress, done)
	}})

	answers, err := dispatcher.Dispatch(context.Background(), "prompt", bank, ModeConcurrent)
	require.NoError(t, err)
	require.Len(t, answers, 8)
	for i, answer := range answers {
		require.Equal(t, i, answer.QuestionIndex)
		require.Equal(t, fmt.Sprintf("question-%02d", i), answer.Question)
		require.Equal(t, labels[answer.Question], answer.RawClassification)
	}
	require.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, progress)
	require.EqualValues(t, 8, classifier.calls.Load())
}

func TestDispatchSequentialRunsInOrder(t *testing.T) {
	bank, labels := numberedBank(5)
	classifier := &stubClassifier{labels: labels}

	var progress []int
	dispatcher := NewDispatcher(classifier, DispatcherConfig{Progress: func(done, _ int) {
		progress = append(progress, done)
	}})

	answers, err := dispatcher.Dispatch(context.Background(), "be precise", bank, ModeSequential)
	require.NoError(t, err)
	require.Len(t, answers, 5)
	require.Equal(t, []int{1, 2, 3, 4, 5}, progress)
	for _, prompt := range classifier.prompts {
		require.Equal(t, "be precise", prompt)
	}
}

func TestDispatchConcurrentAndSequentialAgree(t *testing.T) {
	bank, labels := numberedBank(12)
	classifier := &stubClassifier{labels: labels}
	dispatcher := NewDispatcher(classifier, DispatcherConfig{})

	concurrent, err := dispatcher.Dispatch(context.Background(), "p", bank, ModeConcurrent)
	require.NoError(t, err)
	sequential, err := dispatcher.Dispatch(context.Background(), "p", bank, ModeSequential)
	require.NoError(t, err)

	require.Equal(t, Aggregate(sequential, nil, bank), Aggregate(concurrent, nil, bank))
}

func TestDispatchFailureAbortsBatch(t *testing.T) {
	bank, labels := numberedBank(6)

	for _, mode := range []Mode{ModeConcurrent, ModeSequential} {
		classifier := &stubClassifier{labels: labels, failOn: "question-03"}
		dispatcher := NewDispatcher(classifier, DispatcherConfig{})

		answers, err := dispatcher.Dispatch(context.Background(), "p", bank, mode)
		require.ErrorIs(t, err, ErrDispatchFailed, mode)
		require.Nil(t, answers, mode)
	}
}

func TestDispatchSequentialStopsAtFirstFailure(t *testing.T) {
	bank, labels := numberedBank(6)
	classifier := &stubClassifier{labels: labels, failOn: "question-01"}
	dispatcher := NewDispatcher(classifier, DispatcherConfig{})

	_, err := dispatcher.Dispatch(context.Background(), "p", bank, ModeSequential)
	require.Error(t, err)
	require.EqualValues(t, 2, classifier.calls.Load())
}

func TestDispatchAppliesCallTimeout(t *testing.T) {
	bank := NewQuestionBank([]Question{{Text: "slow", ExpectedLabel: "math"}})
	classifier := &stubClassifier{
		labels: map[string]string{"slow": "math"},
		delays: map[string]time.Duration{"slow": time.Second},
	}
	dispatcher := NewDispatcher(classifier, DispatcherConfig{CallTimeout: 10 * time.Millisecond})

	_, err := dispatcher.Dispatch(context.Background(), "p", bank, ModeConcurrent)
	require.ErrorIs(t, err, ErrDispatchFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	bank, labels := numberedBank(10)
	var inFlight, peak atomic.Int64
	classifier := classifierFunc(func(ctx context.Context, input ai.ClassificationInput) (ai.ClassificationResult, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return ai.ClassificationResult{Label: labels[input.Question]}, nil
	})

	dispatcher := NewDispatcher(classifier, DispatcherConfig{ConcurrencyLimit: 2})
	_, err := dispatcher.Dispatch(context.Background(), "p", bank, ModeConcurrent)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int64(2))
}

func TestDispatchEmptyBank(t *testing.T) {
	dispatcher := NewDispatcher(&stubClassifier{}, DispatcherConfig{})
	answers, err := dispatcher.Dispatch(context.Background(), "p", NewQuestionBank(nil), ModeConcurrent)
	require.NoError(t, err)
	require.Empty(t, answers)
}

func TestDispatchWithoutClassifierFails(t *testing.T) {
	bank, _ := numberedBank(2)
	_, err := NewDispatcher(nil, DispatcherConfig{}).Dispatch(context.Background(), "p", bank, ModeSequential)
	require.ErrorIs(t, err, ai.ErrClassifierUnavailable)
}

func TestPipelineFallsBackOnFailure(t *testing.T) {
	bank, labels := numberedBank(4)
	pipeline := NewPipeline(NewDispatcher(&stubClassifier{labels: labels, failOn: "question-00"}, DispatcherConfig{}), zerolog.Nop())

	outcome := pipeline.Evaluate(context.Background(), "p", bank, ModeConcurrent)
	require.True(t, outcome.Degraded)
	require.Zero(t, outcome.Score)
	require.Len(t, outcome.Results, 4)
	for _, result := range outcome.Results {
		require.False(t, result.Correct)
		require.Equal(t, UnknownLabel, result.NormalizedClassification)
	}
}

type classifierFunc func(ctx context.Context, input ai.ClassificationInput) (ai.ClassificationResult, error)

func (f classifierFunc) Classify(ctx context.Context, input ai.ClassificationInput) (ai.ClassificationResult, error) {
	return f(ctx, input)
}
