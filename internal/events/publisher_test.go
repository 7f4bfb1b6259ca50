package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublisherWithoutTransportsIsNoop(t *testing.T) {
	publisher := NewPublisher(nil, nil, Config{}, zerolog.Nop())
	require.NoError(t, publisher.SubmissionFinalized(context.Background(), "alice", 0.5, time.Now()))
	require.Equal(t, "promptgrade.submissions.finalized", publisher.Subject())

	var nilPublisher *Publisher
	require.NoError(t, nilPublisher.SubmissionFinalized(context.Background(), "alice", 0.5, time.Now()))
}

func TestPublisherSendsToRedisChannel(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	publisher := NewPublisher(nil, client, Config{SubjectPrefix: "grading.prod", Source: "node-1"}, zerolog.Nop())
	require.Equal(t, "grading:prod:submissions:finalized", publisher.Channel())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, publisher.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.SubmissionFinalized(ctx, "alice", 0.75, at))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event SubmissionFinalized
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, SubmissionFinalized{Source: "node-1", Name: "alice", FinalScore: 0.75, Timestamp: at}, event)
}
