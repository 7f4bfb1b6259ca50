package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/promptgrade-api/internal/models"
)

// ErrTriesExhausted is returned by CreateAttempt when the user's latest record
// already reached the tries cap, or when another attempt claimed the same tries
// number first.
var ErrTriesExhausted = errors.New("tries exhausted")

// LeaderboardRow is a per-user aggregate used by the leaderboards.
type LeaderboardRow struct {
	Name     string  `gorm:"column:name"`
	Score    float64 `gorm:"column:score"`
	LatestAt string  `gorm:"column:latest_at"`
}

// ScoreRepository persists submission score records.
type ScoreRepository interface {
	Create(ctx context.Context, record *models.ScoreRecord) error
	CreateAttempt(ctx context.Context, record *models.ScoreRecord, maxTries int) error
	UpdateFinalScore(ctx context.Context, name, solution string, score float64, at time.Time) (int64, error)
	LatestByName(ctx context.Context, name string) (models.ScoreRecord, error)
	BestQuickScores(ctx context.Context, limit int) ([]LeaderboardRow, error)
	BestFinalScores(ctx context.Context, limit int) ([]LeaderboardRow, error)
	LatestPendingPerUser(ctx context.Context) ([]models.ScoreRecord, error)
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository constructs a gorm backed score repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) Create(ctx context.Context, record *models.ScoreRecord) error {
	stampRecord(record)
	return r.db.WithContext(ctx).Create(record).Error
}

// CreateAttempt inserts record with tries set to the latest record's tries plus
// one. The read and the insert share one transaction.
func (r *scoreRepository) CreateAttempt(ctx context.Context, record *models.ScoreRecord, maxTries int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prior, err := latestByName(tx, record.Name)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if maxTries > 0 && prior.Tries >= maxTries {
			return ErrTriesExhausted
		}

		record.Tries = prior.Tries + 1
		stampRecord(record)
		if err := tx.Create(record).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: tries %d already taken", ErrTriesExhausted, record.Tries)
			}
			return err
		}
		return nil
	})
}

// isUniqueViolation matches the translated gorm error and the raw sqlite and
// postgres messages for connections opened without TranslateError.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func (r *scoreRepository) UpdateFinalScore(ctx context.Context, name, solution string, score float64, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ScoreRecord{}).
		Where("name = ? AND solution = ?", name, solution).
		Updates(map[string]interface{}{
			"final_score": score,
			"status":      models.ScoreStatusFinalized,
			"timestamp":   models.FormatTimestamp(at),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *scoreRepository) LatestByName(ctx context.Context, name string) (models.ScoreRecord, error) {
	return latestByName(r.db.WithContext(ctx), name)
}

func (r *scoreRepository) BestQuickScores(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	return r.best(ctx, "quick_score", limit, false)
}

func (r *scoreRepository) BestFinalScores(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	return r.best(ctx, "final_score", limit, true)
}

func (r *scoreRepository) best(ctx context.Context, column string, limit int, finalizedOnly bool) ([]LeaderboardRow, error) {
	query := r.db.WithContext(ctx).Model(&models.ScoreRecord{}).
		Select(fmt.Sprintf("name, MAX(%s) AS score, MAX(timestamp) AS latest_at", column))
	if finalizedOnly {
		query = query.Where("status = ?", models.ScoreStatusFinalized)
	}
	query = query.Group("name").Order("score DESC").Order("name ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []LeaderboardRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestPendingPerUser returns the latest record of every user whose latest
// record is still pending. Older pending records are ignored. Newest first.
func (r *scoreRepository) LatestPendingPerUser(ctx context.Context) ([]models.ScoreRecord, error) {
	db := r.db.WithContext(ctx)
	latest := db.Model(&models.ScoreRecord{}).
		Select("name, MAX(submitted_at) AS latest_at").
		Group("name")

	var records []models.ScoreRecord
	err := db.Table("score_records AS s").
		Select("s.*").
		Joins("JOIN (?) AS latest ON latest.name = s.name AND latest.latest_at = s.submitted_at", latest).
		Order("s.submitted_at DESC").
		Order("s.id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	// Rows sharing a submitted_at are resolved by id, as in latestByName.
	seen := make(map[string]struct{}, len(records))
	pending := make([]models.ScoreRecord, 0, len(records))
	for _, record := range records {
		if _, ok := seen[record.Name]; ok {
			continue
		}
		seen[record.Name] = struct{}{}
		if record.IsPending() {
			pending = append(pending, record)
		}
	}
	return pending, nil
}

func latestByName(db *gorm.DB, name string) (models.ScoreRecord, error) {
	var record models.ScoreRecord
	err := db.Model(&models.ScoreRecord{}).
		Where("name = ?", name).
		Order("submitted_at DESC").
		Order("id DESC").
		First(&record).Error
	if err != nil {
		return models.ScoreRecord{}, err
	}
	return record, nil
}

func stampRecord(record *models.ScoreRecord) {
	if record.SubmittedAt == "" {
		record.SubmittedAt = models.FormatTimestamp(time.Now())
	}
	if record.Timestamp == "" {
		record.Timestamp = record.SubmittedAt
	}
	if record.Status == "" {
		record.Status = models.ScoreStatusPending
	}
}
