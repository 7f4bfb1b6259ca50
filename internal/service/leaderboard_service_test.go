package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promptgrade-api/internal/models"
	"github.com/noah-isme/promptgrade-api/internal/repository"
)

func TestLeaderboardServiceCachesAndInvalidates(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer redisClient.Close()

	db := setupScoreDB(t)
	scores := repository.NewScoreRepository(db)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, name := range []string{"alice", "bob", "carol", "dan"} {
		record := models.ScoreRecord{
			Name:        name,
			Solution:    "prompt",
			QuickScore:  float64(i+1) / 10,
			SubmittedAt: models.FormatTimestamp(base.Add(time.Duration(i) * time.Second)),
		}
		require.NoError(t, scores.CreateAttempt(ctx, &record, DefaultMaxTries))
	}

	svc := NewLeaderboardService(scores, redisClient, time.Minute, zerolog.Nop())

	top, err := svc.TopThree(ctx)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, "dan", top[0].Name)
	require.Equal(t, 1, top[0].Rank)
	require.Equal(t, "bob", top[2].Name)
	require.True(t, mini.Exists("leaderboard:quick:3"))

	// Served from cache even though the store changed.
	better := models.ScoreRecord{Name: "alice", Solution: "better", QuickScore: 0.9, SubmittedAt: models.FormatTimestamp(base.Add(time.Minute))}
	require.NoError(t, scores.CreateAttempt(ctx, &better, DefaultMaxTries))
	cached, err := svc.TopThree(ctx)
	require.NoError(t, err)
	require.Equal(t, "dan", cached[0].Name)

	svc.Invalidate(ctx)
	require.False(t, mini.Exists("leaderboard:quick:3"))

	fresh, err := svc.TopThree(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", fresh[0].Name)
	require.InDelta(t, 0.9, fresh[0].Score, 1e-9)
}

func TestLeaderboardServiceDefaultsAndFinal(t *testing.T) {
	db := setupScoreDB(t)
	scores := repository.NewScoreRepository(db)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		record := models.ScoreRecord{Name: string(rune('a' + i)), Solution: "p", QuickScore: float64(i) / 12}
		require.NoError(t, scores.CreateAttempt(ctx, &record, DefaultMaxTries))
	}
	_, err := scores.UpdateFinalScore(ctx, "a", "p", 0, time.Now())
	require.NoError(t, err)

	svc := NewLeaderboardService(scores, nil, time.Minute, zerolog.Nop())

	quick, err := svc.Quick(ctx, 0)
	require.NoError(t, err)
	require.Len(t, quick, DefaultLeaderboardLimit)

	final, err := svc.Final(ctx, 0)
	require.NoError(t, err)
	require.Len(t, final, 1)
	require.Equal(t, "a", final[0].Name)
	require.Zero(t, final[0].Score)
}
