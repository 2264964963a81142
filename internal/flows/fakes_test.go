package flows

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"sync"
	"time"
)

var errDuplicate = errors.New("duplicate")

type fakeAccounts struct {
	mu     sync.Mutex
	byID   map[string]*AccountRecord
	nextID int
	casN   int
	// loseCAS forces the next n compare-and-swaps to report a lost race.
	loseCAS int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]*AccountRecord{}}
}

func clone(r *AccountRecord) *AccountRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.LockUntil != nil {
		t := *r.LockUntil
		out.LockUntil = &t
	}
	return &out
}

func (f *fakeAccounts) findByUsername(_ context.Context, username string) (*AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.Username == username {
			return clone(r), nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) findByID(_ context.Context, id string) (*AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.byID[id]), nil
}

func (f *fakeAccounts) insert(_ context.Context, username, hash string) (*AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.Username == username {
			return nil, errDuplicate
		}
	}
	f.nextID++
	rec := &AccountRecord{ID: "acc-" + strconv.Itoa(f.nextID), Username: username, PasswordHash: hash}
	f.byID[rec.ID] = rec
	return clone(rec), nil
}

func (f *fakeAccounts) cas(_ context.Context, id string, version int64, m AccountMutation) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.casN++
	if f.loseCAS > 0 {
		f.loseCAS--
		return false, nil
	}
	r := f.byID[id]
	if r == nil || r.Version != version {
		return false, nil
	}
	if m.SetLockout {
		r.LoginAttempts = m.LoginAttempts
		r.LockUntil = nil
		if m.LockUntil != nil {
			t := *m.LockUntil
			r.LockUntil = &t
		}
	}
	if m.PasswordHash != "" {
		r.PasswordHash = m.PasswordHash
	}
	r.Version++
	return true, nil
}

func (f *fakeAccounts) get(id string) *AccountRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.byID[id])
}

// plain "hashing" keeps flow tests independent of the password package.
func fakeHash(p string) (string, error) { return "h:" + p, nil }

func fakeVerify(p, encoded string) (bool, error) {
	if len(encoded) < 2 || encoded[:2] != "h:" {
		return false, errors.New("unknown format")
	}
	return encoded == "h:"+p, nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func encodeB64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
