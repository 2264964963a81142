package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the Redis backend cannot be reached.
var ErrUnavailable = errors.New("revocation backend unavailable")

const defaultPrefix = "arv:"

// Store is a Redis-backed token denylist.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore returns a Store. An empty prefix selects "arv:".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: redisClient, prefix: prefix, now: time.Now}
}

// WithClock replaces the clock used to compute remaining lifetimes.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) key(tokenID string) string {
	return s.prefix + tokenID
}

// Revoke marks tokenID unusable until expiresAt. Once Revoke returns nil the
// entry is visible to every later IsRevoked call.
func (s *Store) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("empty token id")
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	// Round up so the entry never lapses before the token does.
	ttl = ttl.Truncate(time.Millisecond) + time.Millisecond

	if err := s.redis.Set(ctx, s.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether tokenID is on the denylist.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks backend reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
