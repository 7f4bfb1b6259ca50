package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/promptgrade-api/internal/dto"
	"github.com/noah-isme/promptgrade-api/internal/evaluation"
	"github.com/noah-isme/promptgrade-api/internal/middleware"
	"github.com/noah-isme/promptgrade-api/internal/models"
	"github.com/noah-isme/promptgrade-api/internal/observability"
	"github.com/noah-isme/promptgrade-api/internal/repository"
	"github.com/noah-isme/promptgrade-api/internal/worker"
)

// DefaultMaxTries caps accepted submissions per user.
const DefaultMaxTries = 5

var (
	// ErrTriesExceeded indicates the user already used every allowed submission.
	ErrTriesExceeded = errors.New("maximum number of tries exceeded")
	// ErrEvaluationDegraded indicates the oracle failed during a full evaluation.
	ErrEvaluationDegraded = errors.New("full evaluation degraded")
	// ErrSubmissionNotFound indicates the user has no stored submission.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrInvalidName indicates the name is empty once sanitized.
	ErrInvalidName = errors.New("name is required")
)

// BankLoader provides the question banks used for grading.
type BankLoader interface {
	Quick(ctx context.Context) (*evaluation.QuestionBank, error)
	Full(ctx context.Context) (*evaluation.QuestionBank, error)
}

// EventPublisher announces stored final scores.
type EventPublisher interface {
	SubmissionFinalized(ctx context.Context, name string, finalScore float64, at time.Time) error
}

// SubmissionService grades prompts and records the scores.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmitRequest) (dto.SubmitResponse, error)
	Finalize(ctx context.Context, job worker.Job) error
	RescorePending(ctx context.Context) (dto.RescoreSummary, error)
	Latest(ctx context.Context, name string) (dto.ScoreRecordResponse, error)
}

// SubmissionDeps groups the collaborators of the submission service.
type SubmissionDeps struct {
	Scores       repository.ScoreRepository
	Evaluator    evaluation.Evaluator
	Banks        BankLoader
	Scheduler    worker.Scheduler
	Locker       UserLocker
	Leaderboards LeaderboardService
	Events       EventPublisher
	Validator    *validator.Validate
}

type submissionService struct {
	scores       repository.ScoreRepository
	evaluator    evaluation.Evaluator
	banks        BankLoader
	scheduler    worker.Scheduler
	locker       UserLocker
	leaderboards LeaderboardService
	events       EventPublisher
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	maxTries     int
	logger       zerolog.Logger
	now          func() time.Time
}

// NewSubmissionService constructs a SubmissionService. A non-positive maxTries
// falls back to DefaultMaxTries.
func NewSubmissionService(deps SubmissionDeps, maxTries int, logger zerolog.Logger) SubmissionService {
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalUserLocker()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New(validator.WithRequiredStructEnabled())
	}
	return &submissionService{
		scores:       deps.Scores,
		evaluator:    deps.Evaluator,
		banks:        deps.Banks,
		scheduler:    deps.Scheduler,
		locker:       deps.Locker,
		leaderboards: deps.Leaderboards,
		events:       deps.Events,
		validator:    deps.Validator,
		sanitizer:    bluemonday.StrictPolicy(),
		maxTries:     maxTries,
		logger:       logger.With().Str("component", "submission_service").Logger(),
		now:          time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, payload dto.SubmitRequest) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitResponse{}, err
	}
	name := s.normalizeName(payload.Name)
	if name == "" {
		return dto.SubmitResponse{}, ErrInvalidName
	}

	record, outcome, err := s.gradeAttempt(ctx, name, payload.Solution)
	if err != nil {
		if errors.Is(err, ErrTriesExceeded) {
			observability.Submissions().WithLabelValues("rejected").Inc()
		}
		return dto.SubmitResponse{}, err
	}
	observability.Submissions().WithLabelValues("accepted").Inc()

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(ctx, worker.Job{
			Name:          name,
			Solution:      payload.Solution,
			CorrelationID: middleware.CorrelationIDFromContext(ctx),
			SubmittedAt:   record.SubmittedAt,
		}); err != nil {
			s.logger.Error().Err(err).Str("user", name).Msg("failed to schedule full evaluation, left for rescore")
		}
	}
	s.invalidateLeaderboards(ctx)

	s.logger.Info().
		Str("user", name).
		Int("tries", record.Tries).
		Float64("quick_score", outcome.Score).
		Bool("degraded", outcome.Degraded).
		Msg("submission accepted")

	return dto.SubmitResponse{
		Score:          outcome.Score,
		Correct:        outcome.Correct,
		Total:          outcome.Total,
		Results:        outcome.Results,
		NumUses:        record.Tries,
		RemainingTries: max(s.maxTries-record.Tries, 0),
		Degraded:       outcome.Degraded,
	}, nil
}

// gradeAttempt runs the tries check, the quick evaluation and the insert while
// holding the user's lock.
func (s *submissionService) gradeAttempt(ctx context.Context, name, solution string) (models.ScoreRecord, evaluation.Outcome, error) {
	unlock, err := s.locker.Lock(ctx, name)
	if err != nil {
		return models.ScoreRecord{}, evaluation.Outcome{}, fmt.Errorf("lock user %s: %w", name, err)
	}
	defer unlock()

	latest, err := s.scores.LatestByName(ctx, name)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ScoreRecord{}, evaluation.Outcome{}, err
	}
	if latest.Tries >= s.maxTries {
		return models.ScoreRecord{}, evaluation.Outcome{}, ErrTriesExceeded
	}

	bank, err := s.banks.Quick(ctx)
	if err != nil {
		return models.ScoreRecord{}, evaluation.Outcome{}, err
	}
	outcome := s.evaluator.Evaluate(ctx, solution, bank, evaluation.ModeConcurrent)

	results, err := json.Marshal(outcome.Results)
	if err != nil {
		return models.ScoreRecord{}, evaluation.Outcome{}, err
	}
	submittedAt := models.FormatTimestamp(s.now())
	record := models.ScoreRecord{
		Name:         name,
		QuickScore:   outcome.Score,
		Status:       models.ScoreStatusPending,
		Solution:     solution,
		SubmittedAt:  submittedAt,
		Timestamp:    submittedAt,
		QuickResults: results,
	}
	if err := s.scores.CreateAttempt(ctx, &record, s.maxTries); err != nil {
		if errors.Is(err, repository.ErrTriesExhausted) {
			return models.ScoreRecord{}, evaluation.Outcome{}, ErrTriesExceeded
		}
		return models.ScoreRecord{}, evaluation.Outcome{}, err
	}

	return record, outcome, nil
}

// Finalize runs the full evaluation for job and stores the final score on every
// record with the same name and solution. A degraded evaluation leaves the
// records pending.
func (s *submissionService) Finalize(ctx context.Context, job worker.Job) error {
	logger := s.logger.With().Str("user", job.Name).Logger()
	if job.CorrelationID != "" {
		logger = logger.With().Str("correlation_id", job.CorrelationID).Logger()
		ctx = middleware.ContextWithCorrelation(ctx, job.CorrelationID)
	}

	bank, err := s.banks.Full(ctx)
	if err != nil {
		return err
	}

	outcome := s.evaluator.Evaluate(ctx, job.Solution, bank, evaluation.ModeSequential)
	if outcome.Degraded {
		return fmt.Errorf("%w for %s", ErrEvaluationDegraded, job.Name)
	}

	finalizedAt := s.now()
	affected, err := s.scores.UpdateFinalScore(ctx, job.Name, job.Solution, outcome.Score, finalizedAt)
	if err != nil {
		return fmt.Errorf("store final score for %s: %w", job.Name, err)
	}
	if affected == 0 {
		logger.Warn().Msg("no submission matched finalized solution")
		return nil
	}

	s.invalidateLeaderboards(ctx)
	if s.events != nil {
		if err := s.events.SubmissionFinalized(ctx, job.Name, outcome.Score, finalizedAt); err != nil {
			logger.Warn().Err(err).Msg("failed to publish finalization event")
		}
	}

	logger.Info().
		Float64("final_score", outcome.Score).
		Int64("records", affected).
		Msg("submission finalized")
	return nil
}

// RescorePending finalizes the latest pending submission of every user, one at
// a time, and returns the resulting final standings.
func (s *submissionService) RescorePending(ctx context.Context) (dto.RescoreSummary, error) {
	pending, err := s.scores.LatestPendingPerUser(ctx)
	if err != nil {
		return dto.RescoreSummary{}, err
	}

	summary := dto.RescoreSummary{Standings: []dto.LeaderboardEntry{}}
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++
		if err := s.Finalize(ctx, worker.Job{Name: record.Name, Solution: record.Solution, SubmittedAt: record.SubmittedAt}); err != nil {
			summary.Failed++
			s.logger.Warn().Err(err).Str("user", record.Name).Msg("rescore failed, submission stays pending")
			continue
		}
		summary.Finalized++
	}

	if s.leaderboards != nil {
		standings, err := s.leaderboards.Final(ctx, 0)
		if err != nil {
			return summary, err
		}
		summary.Standings = standings
	}

	s.logger.Info().
		Int("processed", summary.Processed).
		Int("finalized", summary.Finalized).
		Int("failed", summary.Failed).
		Msg("pending submissions rescored")
	return summary, nil
}

func (s *submissionService) Latest(ctx context.Context, name string) (dto.ScoreRecordResponse, error) {
	record, err := s.scores.LatestByName(ctx, s.normalizeName(name))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ScoreRecordResponse{}, ErrSubmissionNotFound
		}
		return dto.ScoreRecordResponse{}, err
	}
	return dto.NewScoreRecordResponse(record), nil
}

// normalizeName strips markup from a user name. The policy escapes entities
// such as & and ', so the text is unescaped again before it is stored or
// looked up.
func (s *submissionService) normalizeName(name string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(name)))
}

func (s *submissionService) invalidateLeaderboards(ctx context.Context) {
	if s.leaderboards != nil {
		s.leaderboards.Invalidate(ctx)
	}
}
