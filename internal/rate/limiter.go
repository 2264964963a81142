package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "ali:"

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

// Limiter enforces a per-IP sign-in budget using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(ip string) string {
	return l.config.Prefix + ip
}

// Allow counts one sign-in attempt from ip and reports ErrRateLimited once
// the window budget is exceeded. An empty ip is never throttled.
func (l *Limiter) Allow(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.key(ip), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
