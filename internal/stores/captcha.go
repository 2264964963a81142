package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dchest/captcha"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrCaptchaRedisUnavailable = errors.New("captcha redis unavailable")

const (
	defaultCaptchaPrefix = "acap:"
	defaultCaptchaLength = 4
	defaultCaptchaTTL    = 5 * time.Minute
)

// CaptchaStore issues single-use captcha challenges keyed by an opaque id.
// The answer stays in Redis; callers only ever see the rendered image.
type CaptchaStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	length int
	width  int
	height int
}

func NewCaptchaStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *CaptchaStore {
	if prefix == "" {
		prefix = defaultCaptchaPrefix
	}
	if ttl <= 0 {
		ttl = defaultCaptchaTTL
	}
	return &CaptchaStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		length: defaultCaptchaLength,
		width:  captcha.StdWidth,
		height: captcha.StdHeight,
	}
}

func (s *CaptchaStore) key(id string) string {
	return s.prefix + id
}

// Issue creates a challenge and returns its id with the PNG rendering of
// the code.
func (s *CaptchaStore) Issue(ctx context.Context) (string, []byte, error) {
	digits := captcha.RandomDigits(s.length)
	id := uuid.NewString()

	if err := s.redis.Set(ctx, s.key(id), digitsToCode(digits), s.ttl).Err(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCaptchaRedisUnavailable, err)
	}

	var img bytes.Buffer
	if _, err := captcha.NewImage(id, digits, s.width, s.height).WriteTo(&img); err != nil {
		_ = s.redis.Del(ctx, s.key(id)).Err()
		return "", nil, fmt.Errorf("render captcha: %w", err)
	}
	return id, img.Bytes(), nil
}

// Consume returns the code issued for id and deletes it. Unknown, expired or
// already consumed ids return "".
func (s *CaptchaStore) Consume(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	code, err := s.redis.GetDel(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrCaptchaRedisUnavailable, err)
	}
	return code, nil
}

// digitsToCode turns the 0-9 values captcha works with into the ASCII code
// users type.
func digitsToCode(digits []byte) string {
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[i] = '0' + d
	}
	return string(out)
}
