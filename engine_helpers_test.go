package mpauth

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testAppID = "wx-test-app"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Provider.AppID = testAppID
	cfg.Metrics.Enabled = true
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type testEnv struct {
	engine   *Engine
	accounts *mockAccountStore
	provider *mockProvider
	redis    *miniredis.Miniredis
	clock    *testClock
	audit    *ChannelSink
}

func newTestEngine(t testing.TB, cfg Config) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		accounts: newMockAccountStore(),
		provider: newMockProvider(),
		redis:    mr,
		clock:    newTestClock(),
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.accounts).
		WithIdentityProvider(env.provider).
		WithClock(env.clock.Now)
	if cfg.Audit.Enabled {
		env.audit = NewChannelSink(256)
		b = b.WithAuditSink(env.audit)
	}

	engine, err := b.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// mockAccountStore mirrors the compare-and-swap contract of the real stores.
type mockAccountStore struct {
	mu     sync.Mutex
	byID   map[string]*Account
	byName map[string]string
	seq    int

	updates int
	// failWith is returned by every call when set.
	failWith error
	// block makes every call wait for its context.
	block bool
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		byID:   map[string]*Account{},
		byName: map[string]string{},
	}
}

func (s *mockAccountStore) guard(ctx context.Context) error {
	s.mu.Lock()
	block, fail := s.block, s.failWith
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return fail
}

func (s *mockAccountStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

func (s *mockAccountStore) FindByID(ctx context.Context, id string) (*Account, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id].Clone(), nil
}

func (s *mockAccountStore) Insert(ctx context.Context, account *Account) (*Account, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[account.Username]; ok {
		return nil, ErrUsernameTaken
	}
	s.seq++
	acc := account.Clone()
	if acc.ID == "" {
		acc.ID = "acc-" + strconv.Itoa(s.seq)
	}
	acc.Version = 1
	s.byID[acc.ID] = acc
	s.byName[acc.Username] = acc.ID
	return acc.Clone(), nil
}

func (s *mockAccountStore) AtomicUpdate(ctx context.Context, id string, expectedVersion int64, upd AccountUpdate) (*Account, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[id]
	if !ok || acc.Version != expectedVersion {
		return nil, nil
	}
	upd.Apply(acc)
	s.updates++
	return acc.Clone(), nil
}

func (s *mockAccountStore) get(t *testing.T, username string) *Account {
	t.Helper()
	acc, err := s.FindByUsername(context.Background(), username)
	if err != nil || acc == nil {
		t.Fatalf("expected account %q, got %v err=%v", username, acc, err)
	}
	return acc
}

func (s *mockAccountStore) seed(acc *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc.Version = 1
	s.byID[acc.ID] = acc
	s.byName[acc.Username] = acc.ID
}

func (s *mockAccountStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

type mockProvider struct {
	mu        sync.Mutex
	responses map[string]ExternalIdentity
	errs      map[string]error
	calls     int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		responses: map[string]ExternalIdentity{},
		errs:      map[string]error{},
	}
}

func (p *mockProvider) set(code string, ident ExternalIdentity) {
	p.mu.Lock()
	p.responses[code] = ident
	p.mu.Unlock()
}

func (p *mockProvider) fail(code string, err error) {
	p.mu.Lock()
	p.errs[code] = err
	p.mu.Unlock()
}

func (p *mockProvider) Exchange(ctx context.Context, code string) (ExternalIdentity, error) {
	p.mu.Lock()
	p.calls++
	err, failed := p.errs[code]
	ident, ok := p.responses[code]
	p.mu.Unlock()

	if failed {
		if err == context.DeadlineExceeded {
			<-ctx.Done()
			return ExternalIdentity{}, ctx.Err()
		}
		return ExternalIdentity{}, err
	}
	if !ok {
		return ExternalIdentity{}, &ProviderError{Code: 40029, Message: "invalid code"}
	}
	return ident, nil
}
