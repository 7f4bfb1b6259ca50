package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/dto"
	"github.com/noah-isme/promptgrade-api/internal/repository"
)

const (
	// DefaultLeaderboardLimit is used when no positive limit is requested.
	DefaultLeaderboardLimit = 10

	leaderboardCachePrefix = "leaderboard:"
)

// LeaderboardService serves standings from stored scores.
type LeaderboardService interface {
	Quick(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error)
	Final(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error)
	TopThree(ctx context.Context) ([]dto.LeaderboardEntry, error)
	Invalidate(ctx context.Context)
}

type leaderboardService struct {
	scores   repository.ScoreRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewLeaderboardService builds the leaderboard service. cache may be nil.
func NewLeaderboardService(scores repository.ScoreRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) LeaderboardService {
	return &leaderboardService{
		scores:   scores,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "leaderboard_service").Logger(),
	}
}

// Quick ranks users by their best quick score.
func (s *leaderboardService) Quick(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	return s.cached(ctx, "quick", limit, s.scores.BestQuickScores)
}

// Final ranks users by their best final score. A non-positive limit returns all users.
func (s *leaderboardService) Final(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	if limit < 0 {
		limit = 0
	}
	return s.cached(ctx, "final", limit, s.scores.BestFinalScores)
}

func (s *leaderboardService) TopThree(ctx context.Context) ([]dto.LeaderboardEntry, error) {
	return s.Quick(ctx, 3)
}

// Invalidate drops every cached leaderboard.
func (s *leaderboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}

	var cursor uint64
	for {
		keys, next, err := s.cache.Scan(ctx, cursor, leaderboardCachePrefix+"*", 100).Result()
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to scan leaderboard cache")
			return
		}
		if len(keys) > 0 {
			if err := s.cache.Del(ctx, keys...).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to invalidate leaderboard cache")
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

func (s *leaderboardService) cached(ctx context.Context, kind string, limit int, load func(context.Context, int) ([]repository.LeaderboardRow, error)) ([]dto.LeaderboardEntry, error) {
	cacheKey := fmt.Sprintf("%s%s:%d", leaderboardCachePrefix, kind, limit)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var entries []dto.LeaderboardEntry
			if unmarshalErr := json.Unmarshal([]byte(cached), &entries); unmarshalErr == nil {
				s.logger.Debug().Str("key", cacheKey).Msg("leaderboard cache hit")
				return entries, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read leaderboard cache")
		}
	}

	rows, err := load(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := toLeaderboardEntries(rows)

	if s.cache != nil {
		payload, err := json.Marshal(entries)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store leaderboard cache")
			}
		}
	}

	return entries, nil
}

func toLeaderboardEntries(rows []repository.LeaderboardRow) []dto.LeaderboardEntry {
	entries := make([]dto.LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, dto.LeaderboardEntry{
			Rank:      i + 1,
			Name:      row.Name,
			Score:     row.Score,
			Timestamp: row.LatestAt,
		})
	}
	return entries
}
