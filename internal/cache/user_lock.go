package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context expired.
var ErrLockTimeout = errors.New("timed out waiting for user lock")

const (
	defaultLockTTL   = 2 * time.Minute
	defaultLockRetry = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisUserLocker serializes work per user across processes sharing a redis.
type RedisUserLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// NewRedisUserLocker builds a locker. ttl bounds how long a crashed holder can
// keep the lock.
func NewRedisUserLocker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisUserLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisUserLocker{
		client: client,
		prefix: "lock:user:",
		ttl:    ttl,
		retry:  defaultLockRetry,
		logger: logger.With().Str("component", "redis_user_locker").Logger(),
	}
}

// Lock blocks until the lock for name is held or ctx is done.
func (l *RedisUserLocker) Lock(ctx context.Context, name string) (func(), error) {
	key := l.prefix + name
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("user", name).Msg("failed to release user lock")
		}
	}, nil
}
