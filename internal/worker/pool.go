package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/observability"
)

var (
	// ErrQueueFull is returned when the pool cannot accept more jobs.
	ErrQueueFull = errors.New("finalize queue is full")
	// ErrSchedulerStopped is returned for jobs scheduled after Stop.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)

// Job asks for the full evaluation of one submitted solution.
type Job struct {
	Name     string `json:"name"`
	Solution string `json:"solution"`
	// CorrelationID links the job to the request that queued it. It is not
	// part of Key.
	CorrelationID string `json:"correlation_id,omitempty"`
	// SubmittedAt stamps the submission that queued the job. It scopes the
	// asynq task ID and is not part of Key.
	SubmittedAt string `json:"submitted_at,omitempty"`
}

// Key identifies the job. Jobs with equal keys produce the same result.
func (j Job) Key() string {
	sum := sha256.Sum256([]byte(j.Name + "\x00" + j.Solution))
	return hex.EncodeToString(sum[:])
}

// Handler runs a job.
type Handler func(ctx context.Context, job Job) error

// Scheduler accepts jobs for background execution.
type Scheduler interface {
	Schedule(ctx context.Context, job Job) error
}

// PoolConfig sizes the in-process pool.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Pool runs jobs on a fixed set of goroutines fed by a bounded queue. Jobs
// already waiting in the queue are not queued twice.
type Pool struct {
	handler Handler
	cfg     PoolConfig
	logger  zerolog.Logger

	queue   chan Job
	mu      sync.Mutex
	queued  map[string]struct{}
	started bool
	stopped bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool. Call Start before scheduling.
func NewPool(handler Handler, cfg PoolConfig, logger zerolog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		cfg:     cfg,
		logger:  logger.With().Str("component", "finalize_pool").Logger(),
		queue:   make(chan Job, cfg.QueueSize),
		queued:  make(map[string]struct{}),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Info().Int("workers", p.cfg.Workers).Int("queue_size", p.cfg.QueueSize).Msg("finalize pool started")
}

// Schedule queues job without blocking.
func (p *Pool) Schedule(_ context.Context, job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrSchedulerStopped
	}
	key := job.Key()
	if _, ok := p.queued[key]; ok {
		observability.FinalizeJobs().WithLabelValues("coalesced").Inc()
		return nil
	}

	select {
	case p.queue <- job:
		p.queued[key] = struct{}{}
		return nil
	default:
		observability.FinalizeJobs().WithLabelValues("rejected").Inc()
		return ErrQueueFull
	}
}

// Stop refuses new jobs and waits for queued ones to finish. When ctx expires
// first, running jobs are cancelled and ctx's error is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		p.mu.Lock()
		delete(p.queued, job.Key())
		p.mu.Unlock()

		p.execute(id, job)
	}
}

func (p *Pool) execute(id int, job Job) {
	ctx := p.baseCtx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(ctx, p.handler, job)
	logEvent := p.logger.Info()
	result := "succeeded"
	if err != nil {
		logEvent = p.logger.Error().Err(err)
		result = "failed"
	}
	observability.FinalizeJobs().WithLabelValues(result).Inc()
	logEvent.
		Int("worker", id).
		Str("user", job.Name).
		Dur("elapsed", time.Since(start)).
		Msg("finalize job finished")
}

func safeRun(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("finalize job panicked: %v\n%s", recovered, debug.Stack())
		}
	}()
	return handler(ctx, job)
}
