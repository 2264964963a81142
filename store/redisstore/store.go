// Package redisstore keeps accounts in Redis as JSON documents with a
// username index key. Updates use WATCH/MULTI so the version predicate and
// the write are atomic.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/mpauth"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "acc:"

const insertScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
return 1
`

var insertLua = redis.NewScript(insertScript)

type document struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"password_hash"`
	Nickname      string     `json:"nickname,omitempty"`
	Avatar        string     `json:"avatar,omitempty"`
	Tel           string     `json:"tel,omitempty"`
	Email         string     `json:"email,omitempty"`
	Gender        int        `json:"gender,omitempty"`
	Birthday      *time.Time `json:"birthday,omitempty"`
	LoginAttempts int        `json:"login_attempts"`
	LockUntil     *time.Time `json:"lock_until,omitempty"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toDocument(a *mpauth.Account) document {
	return document{
		ID:            a.ID,
		Username:      a.Username,
		PasswordHash:  a.PasswordHash,
		Nickname:      a.Nickname,
		Avatar:        a.Avatar,
		Tel:           a.Tel,
		Email:         a.Email,
		Gender:        a.Gender,
		Birthday:      a.Birthday,
		LoginAttempts: a.LoginAttempts,
		LockUntil:     a.LockUntil,
		Version:       a.Version,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (d document) account() *mpauth.Account {
	return &mpauth.Account{
		ID:            d.ID,
		Username:      d.Username,
		PasswordHash:  d.PasswordHash,
		Nickname:      d.Nickname,
		Avatar:        d.Avatar,
		Tel:           d.Tel,
		Email:         d.Email,
		Gender:        d.Gender,
		Birthday:      d.Birthday,
		LoginAttempts: d.LoginAttempts,
		LockUntil:     d.LockUntil,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// Store implements mpauth.AccountStore over go-redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New returns a Store. An empty prefix selects "acc:".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix, now: time.Now}
}

func (s *Store) docKey(id string) string {
	return s.prefix + "id:" + id
}

func (s *Store) usernameKey(username string) string {
	return s.prefix + "u:" + username
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", mpauth.ErrStoreUnavailable, err)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*mpauth.Account, error) {
	id, err := s.redis.Get(ctx, s.usernameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return s.FindByID(ctx, id)
}

func (s *Store) FindByID(ctx context.Context, id string) (*mpauth.Account, error) {
	data, err := s.redis.Get(ctx, s.docKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: corrupt account document %s", mpauth.ErrStoreUnavailable, id)
	}
	return doc.account(), nil
}

func (s *Store) Insert(ctx context.Context, account *mpauth.Account) (*mpauth.Account, error) {
	rec := account.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Version == 0 {
		rec.Version = 1
	}

	data, err := json.Marshal(toDocument(rec))
	if err != nil {
		return nil, err
	}

	ok, err := insertLua.Run(ctx, s.redis,
		[]string{s.usernameKey(rec.Username), s.docKey(rec.ID)},
		rec.ID, data,
	).Int()
	if err != nil {
		return nil, unavailable(err)
	}
	if ok == 0 {
		return nil, mpauth.ErrUsernameTaken
	}
	return rec, nil
}

// AtomicUpdate watches the account document; a concurrent write aborts the
// transaction and is reported as a failed predicate.
func (s *Store) AtomicUpdate(ctx context.Context, id string, expectedVersion int64, upd mpauth.AccountUpdate) (*mpauth.Account, error) {
	key := s.docKey(id)
	var updated *mpauth.Account

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		if doc.Version != expectedVersion {
			return nil
		}

		rec := doc.account()
		upd.Apply(rec)
		encoded, err := json.Marshal(toDocument(rec))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = rec
		return nil
	}, key)

	if err == redis.TxFailedErr || errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return updated, nil
}
