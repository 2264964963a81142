// Package memstore is an in-process AccountStore for tests, demos and single
// instance deployments. Records do not survive a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/mpauth"
	"github.com/google/uuid"
)

// Store is a mutex-guarded map of accounts with a username index.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*mpauth.Account
	byUsername map[string]string
	now        func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:       make(map[string]*mpauth.Account),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*mpauth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*mpauth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.byID[id].Clone(), nil
}

// Insert stores a copy of account. The username index enforces uniqueness.
func (s *Store) Insert(ctx context.Context, account *mpauth.Account) (*mpauth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[rec.Username]; taken {
		return nil, mpauth.ErrUsernameTaken
	}
	if _, taken := s.byID[rec.ID]; taken {
		return nil, mpauth.ErrUsernameTaken
	}
	s.byID[rec.ID] = rec
	s.byUsername[rec.Username] = rec.ID
	return rec.Clone(), nil
}

// AtomicUpdate applies upd when the stored version still equals expectedVersion.
func (s *Store) AtomicUpdate(ctx context.Context, id string, expectedVersion int64, upd mpauth.AccountUpdate) (*mpauth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok || rec.Version != expectedVersion {
		return nil, nil
	}
	upd.Apply(rec)
	return rec.Clone(), nil
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
