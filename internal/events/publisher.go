package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promptgrade-api/internal/observability"
)

// TypeSubmissionFinalized is the event type emitted after a final score is stored.
const TypeSubmissionFinalized = "submission.finalized"

// SubmissionFinalized announces a stored final score.
type SubmissionFinalized struct {
	Source     string    `json:"source"`
	Name       string    `json:"name"`
	FinalScore float64   `json:"final_score"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher fans finalization events out to NATS and redis pub/sub. Either
// transport may be absent.
type Publisher struct {
	nats         *nats.Conn
	natsSubject  string
	redis        *redis.Client
	redisChannel string
	source       string
	logger       zerolog.Logger
}

// Config names the destinations of the publisher.
type Config struct {
	// SubjectPrefix is the NATS subject prefix, e.g. "promptgrade".
	SubjectPrefix string
	// Source identifies this node in emitted events.
	Source string
}

// NewPublisher builds a publisher. Nil connections disable their transport.
func NewPublisher(natsConn *nats.Conn, redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Publisher {
	prefix := strings.Trim(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "promptgrade"
	}
	source := cfg.Source
	if source == "" {
		source = "promptgrade-api"
	}
	return &Publisher{
		nats:         natsConn,
		natsSubject:  prefix + ".submissions.finalized",
		redis:        redisClient,
		redisChannel: strings.ReplaceAll(prefix, ".", ":") + ":submissions:finalized",
		source:       source,
		logger:       logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Subject returns the NATS subject finalization events are published on.
func (p *Publisher) Subject() string {
	return p.natsSubject
}

// Channel returns the redis channel finalization events are published on.
func (p *Publisher) Channel() string {
	return p.redisChannel
}

// SubmissionFinalized publishes a finalization event on every configured transport.
func (p *Publisher) SubmissionFinalized(ctx context.Context, name string, finalScore float64, at time.Time) error {
	if p == nil || (p.nats == nil && p.redis == nil) {
		return nil
	}

	payload, err := json.Marshal(SubmissionFinalized{
		Source:     p.source,
		Name:       name,
		FinalScore: finalScore,
		Timestamp:  at.UTC(),
	})
	if err != nil {
		return err
	}

	if p.nats != nil {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			return err
		}
	}
	if p.redis != nil {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	observability.EventsPublished().WithLabelValues(TypeSubmissionFinalized).Inc()
	p.logger.Debug().Str("user", name).Float64("final_score", finalScore).Msg("finalization event published")
	return nil
}
