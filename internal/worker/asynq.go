package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/observability"
)

// TaskFinalize is the asynq task type carrying a Job.
const TaskFinalize = "submission:finalize"

// AsynqConfig tunes the asynq backed scheduler and server.
type AsynqConfig struct {
	Queue       string
	MaxRetry    int
	JobTimeout  time.Duration
	Concurrency int
}

func (c AsynqConfig) queue() string {
	if c.Queue == "" {
		return "finalize"
	}
	return c.Queue
}

// AsynqScheduler enqueues finalize jobs into redis through asynq.
type AsynqScheduler struct {
	client *asynq.Client
	cfg    AsynqConfig
	logger zerolog.Logger
}

// NewAsynqScheduler wraps an asynq client.
func NewAsynqScheduler(client *asynq.Client, cfg AsynqConfig, logger zerolog.Logger) *AsynqScheduler {
	return &AsynqScheduler{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "asynq_scheduler").Logger(),
	}
}

// NewFinalizeTask encodes job as an asynq task.
func NewFinalizeTask(job Job) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode finalize job: %w", err)
	}
	return asynq.NewTask(TaskFinalize, payload), nil
}

// FinalizeTaskID is the asynq task ID of job. Asynq keeps the ID of an
// archived task reserved, so the submission stamp is folded in to let a later
// submission of the same solution enqueue again.
func FinalizeTaskID(job Job) string {
	if job.SubmittedAt == "" {
		return job.Key()
	}
	return job.Key() + ":" + job.SubmittedAt
}

// Schedule enqueues job. A task with the same ID that is still known to asynq
// is left alone.
func (s *AsynqScheduler) Schedule(ctx context.Context, job Job) error {
	task, err := NewFinalizeTask(job)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.TaskID(FinalizeTaskID(job)),
		asynq.Queue(s.cfg.queue()),
		asynq.MaxRetry(s.cfg.MaxRetry),
	}
	if s.cfg.JobTimeout > 0 {
		opts = append(opts, asynq.Timeout(s.cfg.JobTimeout))
	}

	info, err := s.client.EnqueueContext(ctx, task, opts...)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		observability.FinalizeJobs().WithLabelValues("coalesced").Inc()
		s.logger.Warn().
			Str("task_id", FinalizeTaskID(job)).
			Str("user", job.Name).
			Msg("finalize task id already taken, an archived task is only recovered by rescore")
		return nil
	case err != nil:
		return fmt.Errorf("enqueue finalize job: %w", err)
	}

	s.logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Str("user", job.Name).Msg("finalize job enqueued")
	return nil
}

// DecodeFinalizeTask parses the payload of a finalize task.
func DecodeFinalizeTask(task *asynq.Task) (Job, error) {
	var job Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return Job{}, fmt.Errorf("decode finalize job: %w", err)
	}
	if job.Name == "" {
		return Job{}, errors.New("decode finalize job: missing name")
	}
	return job, nil
}

// FinalizeTaskHandler adapts handler to asynq. Malformed payloads are not retried.
func FinalizeTaskHandler(handler Handler) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		job, err := DecodeFinalizeTask(task)
		if err != nil {
			observability.FinalizeJobs().WithLabelValues("rejected").Inc()
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		if err := safeRun(ctx, handler, job); err != nil {
			observability.FinalizeJobs().WithLabelValues("failed").Inc()
			return err
		}
		observability.FinalizeJobs().WithLabelValues("succeeded").Inc()
		return nil
	}
}

// AsynqServer consumes finalize tasks.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewAsynqServer builds a consumer running handler for every finalize task.
func NewAsynqServer(redisOpt asynq.RedisConnOpt, cfg AsynqConfig, handler Handler, logger zerolog.Logger) *AsynqServer {
	log := logger.With().Str("component", "asynq_server").Logger()
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{cfg.queue(): 1},
		Logger:      zerologAdapter{logger: log},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task", task.Type()).Msg("finalize task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskFinalize, FinalizeTaskHandler(handler))
	return &AsynqServer{server: server, mux: mux}
}

// Start begins processing in the background.
func (s *AsynqServer) Start() error {
	return s.server.Start(s.mux)
}

// Shutdown waits for active tasks and stops the server.
func (s *AsynqServer) Shutdown() {
	s.server.Shutdown()
}

type zerologAdapter struct {
	logger zerolog.Logger
}

func (a zerologAdapter) Debug(args ...interface{}) { a.logger.Debug().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Info(args ...interface{})  { a.logger.Info().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Warn(args ...interface{})  { a.logger.Warn().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Error(args ...interface{}) { a.logger.Error().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Fatal(args ...interface{}) { a.logger.Fatal().Msg(fmt.Sprint(args...)) }
