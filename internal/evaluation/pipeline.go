package evaluation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/promptgrade-api/internal/observability"
)

// Evaluator grades a prompt against a question bank.
type Evaluator interface {
	Evaluate(ctx context.Context, prompt string, bank *QuestionBank, mode Mode) Outcome
}

// Pipeline dispatches a batch and aggregates it. It always returns an outcome.
type Pipeline struct {
	dispatcher *Dispatcher
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewPipeline builds the dispatch and aggregate pipeline.
func NewPipeline(dispatcher *Dispatcher, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "evaluation_pipeline").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/promptgrade-api/internal/evaluation"),
	}
}

func (p *Pipeline) Evaluate(ctx context.Context, prompt string, bank *QuestionBank, mode Mode) Outcome {
	spanCtx, span := p.tracer.Start(ctx, "evaluation.evaluate", trace.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("questions", bank.Len()),
	))
	defer span.End()

	start := time.Now()
	answers, err := p.dispatcher.Dispatch(spanCtx, prompt, bank, mode)
	outcome := Aggregate(answers, err, bank)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		p.logger.Warn().Err(err).Str("mode", string(mode)).Int("questions", bank.Len()).Msg("dispatch failed, using fallback outcome")
	}
	observability.DispatchBatches().WithLabelValues(string(mode), status).Inc()
	observability.DispatchLatency().WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	if !outcome.Degraded {
		observability.EvaluationScores().WithLabelValues(string(mode)).Observe(outcome.Score)
	}

	span.SetAttributes(attribute.Float64("score", outcome.Score), attribute.Bool("degraded", outcome.Degraded))
	p.logger.Debug().
		Str("mode", string(mode)).
		Int("correct", outcome.Correct).
		Int("total", outcome.Total).
		Dur("elapsed", elapsed).
		Msg("evaluation completed")

	return outcome
}
