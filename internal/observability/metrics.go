package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	requestsTotal     *prometheus.CounterVec
	latencySeconds    *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	dispatchBatches   *prometheus.CounterVec
	dispatchLatency   *prometheus.HistogramVec
	evaluationScores  *prometheus.HistogramVec
	submissionsTotal  *prometheus.CounterVec
	finalizeJobsTotal *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		dispatchBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_batches_total",
			Help: "Classification batches dispatched, by mode and result.",
		}, []string{"mode", "status"})

		dispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_batch_seconds",
			Help:    "Wall time of a classification batch.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"mode"})

		evaluationScores = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evaluation_score",
			Help:    "Distribution of non-degraded evaluation scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"mode"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submissions received, by result.",
		}, []string{"result"})

		finalizeJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finalize_jobs_total",
			Help: "Background full evaluations, by result.",
		}, []string{"result"})

		eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events published to the message broker.",
		}, []string{"type"})

		prometheus.MustRegister(
			requestsTotal, latencySeconds, errorsTotal,
			dispatchBatches, dispatchLatency, evaluationScores,
			submissionsTotal, finalizeJobsTotal, eventsPublished,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// DispatchBatches counts dispatched classification batches.
func DispatchBatches() *prometheus.CounterVec {
	RegisterMetrics()
	return dispatchBatches
}

// DispatchLatency tracks batch wall time.
func DispatchLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return dispatchLatency
}

// EvaluationScores tracks score distribution.
func EvaluationScores() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationScores
}

// Submissions counts submit attempts by result.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// FinalizeJobs counts background evaluations by result.
func FinalizeJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return finalizeJobsTotal
}

// EventsPublished counts broker events.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublished
}
