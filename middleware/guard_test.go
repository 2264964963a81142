package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/middleware"
	"github.com/MrEthical07/mpauth/store/memstore"
)

func newGuardEngine(t *testing.T) (*mpauth.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := mpauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := mpauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memstore.New()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, mr
}

func issueToken(t *testing.T, engine *mpauth.Engine) string {
	t.Helper()
	ctx := context.Background()
	if _, err := engine.SignUp(ctx, "alice", "correct-password-123"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	res, err := engine.SignIn(ctx, mpauth.SignInRequest{Username: "alice", Password: "correct-password-123"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return res.Token
}

func guarded(engine *mpauth.Engine, seen *string) http.Handler {
	return middleware.Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if res, ok := middleware.AuthResultFromContext(r.Context()); ok {
			*seen = res.Username
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestGuardAdmitsValidToken(t *testing.T) {
	engine, _ := newGuardEngine(t)
	token := issueToken(t, engine)

	var seen string
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	guarded(engine, &seen).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen != "alice" {
		t.Fatalf("expected alice in context, got %q", seen)
	}
}

func TestGuardRejectsMissingAndBadTokens(t *testing.T) {
	engine, _ := newGuardEngine(t)

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		var seen string
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		guarded(engine, &seen).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestGuardRejectsRevokedToken(t *testing.T) {
	engine, _ := newGuardEngine(t)
	token := issueToken(t, engine)
	if err := engine.SignOut(context.Background(), token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	var seen string
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	guarded(engine, &seen).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardUnavailableWhenRevocationDown(t *testing.T) {
	engine, mr := newGuardEngine(t)
	token := issueToken(t, engine)
	mr.Close()

	var seen string
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	guarded(engine, &seen).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if seen != "" {
		t.Fatal("handler must not run")
	}
}

func TestGuardNilEngine(t *testing.T) {
	var seen string
	rec := httptest.NewRecorder()
	guarded(nil, &seen).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := middleware.BearerToken("Bearer abc"); !ok || tok != "abc" {
		t.Fatalf("unexpected %q %v", tok, ok)
	}
	if _, ok := middleware.BearerToken("bearer abc"); ok {
		t.Fatal("scheme is case-sensitive")
	}
}
