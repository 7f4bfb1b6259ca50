package ai

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "promptgrade",
		Subsystem: "oracle",
		Name:      "call_duration_seconds",
		Help:      "Duration of oracle classification calls",
	}, []string{"provider", "model"})

	oracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptgrade",
		Subsystem: "oracle",
		Name:      "call_failures_total",
		Help:      "Number of failed oracle classification calls",
	}, []string{"provider", "model"})
)

var tracer = otel.Tracer("github.com/noah-isme/promptgrade-api/pkg/ai")

// instrument wraps a single provider call with a span, latency histogram and failure counter.
func instrument(ctx context.Context, provider, model string, call func(ctx context.Context) (ClassificationResult, error)) (ClassificationResult, error) {
	spanCtx, span := tracer.Start(ctx, provider+".classify", trace.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	))
	defer span.End()

	start := time.Now()
	result, err := call(spanCtx)
	oracleDuration.WithLabelValues(provider, model).Observe(time.Since(start).Seconds())
	if err != nil {
		oracleFailures.WithLabelValues(provider, model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ClassificationResult{}, err
	}

	span.SetAttributes(attribute.String("label", result.Label))
	return result, nil
}
