package flows

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/mpauth/internal/lockout"
	"github.com/MrEthical07/mpauth/jwt"
)

func newSignInDeps(t *testing.T, store *fakeAccounts, clock *fixedClock) SignInDeps {
	t.Helper()
	return SignInDeps{
		Policy:         lockout.Policy{MaxAttempts: 5, Duration: 2 * time.Hour},
		MaxRetries:     8,
		Now:            clock.Now,
		FindByUsername: store.findByUsername,
		CompareAndSwap: store.cas,
		VerifyPassword: fakeVerify,
		HashPassword:   fakeHash,
		IssueToken: func(accountID string) (string, *jwt.Claims, error) {
			c := &jwt.Claims{}
			c.Subject = accountID
			c.ID = "jti-" + accountID
			return "token-for-" + accountID, c, nil
		},
	}
}

func seed(t *testing.T, store *fakeAccounts, username, password string) string {
	t.Helper()
	rec, err := store.insert(context.Background(), username, "h:"+password)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec.ID
}

func TestSignInSuccessIssuesTokenWithoutWrite(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	id := seed(t, store, "carol", "pw")

	res := RunSignIn(context.Background(), SignInInput{Username: "carol", Password: "pw"}, newSignInDeps(t, store, clock))
	if res.Failure != SignInFailureNone {
		t.Fatalf("expected success, got %v (%v)", res.Failure, res.Err)
	}
	if res.Token != "token-for-"+id || res.AccountID != id {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.casN != 0 {
		t.Fatalf("fast path must not write, cas calls=%d", store.casN)
	}
}

func TestSignInValidatesInputAndCaptcha(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	seed(t, store, "carol", "pw")
	deps := newSignInDeps(t, store, clock)

	if res := RunSignIn(context.Background(), SignInInput{Username: "carol"}, deps); res.Failure != SignInFailureInvalidInput {
		t.Fatalf("expected invalid input, got %v", res.Failure)
	}
	res := RunSignIn(context.Background(), SignInInput{Username: "carol", Password: "pw", CaptchaCode: "abcd", SessionCaptchaCode: "abce"}, deps)
	if res.Failure != SignInFailureCaptcha {
		t.Fatalf("expected captcha mismatch, got %v", res.Failure)
	}

	deps.RequireCaptcha = true
	res = RunSignIn(context.Background(), SignInInput{Username: "carol", Password: "pw"}, deps)
	if res.Failure != SignInFailureCaptcha {
		t.Fatalf("required captcha with empty session code must mismatch, got %v", res.Failure)
	}
	res = RunSignIn(context.Background(), SignInInput{Username: "carol", Password: "pw", CaptchaCode: "x1y2", SessionCaptchaCode: "x1y2"}, deps)
	if res.Failure != SignInFailureNone {
		t.Fatalf("expected success with matching captcha, got %v", res.Failure)
	}
}

func TestCaptchaMatches(t *testing.T) {
	cases := []struct {
		supplied, session string
		required, want    bool
	}{
		{"", "", false, true},
		{"", "", true, false},
		{"abc", "", false, false},
		{"abc", "abc", true, true},
		{"abc", "abd", false, false},
		{"ab", "abc", false, false},
	}
	for _, tc := range cases {
		if got := CaptchaMatches(tc.supplied, tc.session, tc.required); got != tc.want {
			t.Fatalf("CaptchaMatches(%q,%q,%v)=%v want %v", tc.supplied, tc.session, tc.required, got, tc.want)
		}
	}
}

func TestSignInUnknownUserIsInvalidCredentials(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	res := RunSignIn(context.Background(), SignInInput{Username: "ghost", Password: "pw"}, newSignInDeps(t, store, clock))
	if res.Failure != SignInFailureInvalidCredentials || res.Decision != lockout.AccountNotFound {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestSignInFifthFailureLocksAndCorrectPasswordStaysLocked(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	id := seed(t, store, "bob", "right")
	deps := newSignInDeps(t, store, clock)

	for i := 1; i <= 4; i++ {
		res := RunSignIn(context.Background(), SignInInput{Username: "bob", Password: "wrong"}, deps)
		if res.Failure != SignInFailureInvalidCredentials {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, res.Failure)
		}
	}
	res := RunSignIn(context.Background(), SignInInput{Username: "bob", Password: "wrong"}, deps)
	if res.Failure != SignInFailureLocked || !res.LockEngaged {
		t.Fatalf("5th attempt must lock, got %+v", res)
	}
	wantUntil := clock.Now().Add(2 * time.Hour)
	if !res.LockUntil.Equal(wantUntil) {
		t.Fatalf("lock until %v want %v", res.LockUntil, wantUntil)
	}

	res = RunSignIn(context.Background(), SignInInput{Username: "bob", Password: "right"}, deps)
	if res.Failure != SignInFailureLocked || res.Decision != lockout.AccountLocked {
		t.Fatalf("correct password during lock must be rejected, got %+v", res)
	}
	if got := store.get(id).LoginAttempts; got != 6 {
		t.Fatalf("attempts during lock still count: got %d want 6", got)
	}

	clock.Advance(2*time.Hour + time.Second)
	res = RunSignIn(context.Background(), SignInInput{Username: "bob", Password: "right"}, deps)
	if res.Failure != SignInFailureNone {
		t.Fatalf("expected success after expiry, got %v", res.Failure)
	}
	rec := store.get(id)
	if rec.LoginAttempts != 0 || rec.LockUntil != nil {
		t.Fatalf("success must clear lockout state, got %+v", rec)
	}
}

func TestSignInRetriesLostCompareAndSwap(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	id := seed(t, store, "dave", "pw")
	store.loseCAS = 3

	res := RunSignIn(context.Background(), SignInInput{Username: "dave", Password: "nope"}, newSignInDeps(t, store, clock))
	if res.Failure != SignInFailureInvalidCredentials {
		t.Fatalf("unexpected %v", res.Failure)
	}
	if got := store.get(id).LoginAttempts; got != 1 {
		t.Fatalf("attempts=%d want 1", got)
	}
	if store.casN != 4 {
		t.Fatalf("cas calls=%d want 4", store.casN)
	}
}

func TestSignInGivesUpAfterMaxRetries(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	seed(t, store, "erin", "pw")
	store.loseCAS = 100
	deps := newSignInDeps(t, store, clock)
	deps.MaxRetries = 3

	res := RunSignIn(context.Background(), SignInInput{Username: "erin", Password: "nope"}, deps)
	if res.Failure != SignInFailureConflict {
		t.Fatalf("expected conflict, got %v", res.Failure)
	}
}

func TestSignInConcurrentFailuresCountExactlyOnce(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	id := seed(t, store, "frank", "pw")
	deps := newSignInDeps(t, store, clock)
	deps.Policy.MaxAttempts = 100
	deps.MaxRetries = 64

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RunSignIn(context.Background(), SignInInput{Username: "frank", Password: "bad"}, deps)
		}()
	}
	wg.Wait()

	if got := store.get(id).LoginAttempts; got != n {
		t.Fatalf("attempts=%d want %d", got, n)
	}
}

func TestSignInUpgradesLegacyDigest(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	id := seed(t, store, "gina", "pw")
	deps := newSignInDeps(t, store, clock)
	deps.UpgradeOnLogin = true
	deps.NeedsRehash = func(encoded string) bool { return !strings.HasSuffix(encoded, "#v2") }
	deps.HashPassword = func(p string) (string, error) { return "h:" + p + "#v2", nil }
	deps.VerifyPassword = func(p, encoded string) (bool, error) {
		return strings.TrimSuffix(encoded, "#v2") == "h:"+p, nil
	}

	res := RunSignIn(context.Background(), SignInInput{Username: "gina", Password: "pw"}, deps)
	if res.Failure != SignInFailureNone || !res.Rehashed {
		t.Fatalf("expected rehash on success, got %+v", res)
	}
	if got := store.get(id).PasswordHash; got != "h:pw#v2" {
		t.Fatalf("hash not upgraded: %q", got)
	}
}

func TestSignInRateLimited(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	seed(t, store, "hank", "pw")
	deps := newSignInDeps(t, store, clock)
	deps.CheckRate = func(context.Context) (bool, error) { return true, nil }

	res := RunSignIn(context.Background(), SignInInput{Username: "hank", Password: "pw"}, deps)
	if res.Failure != SignInFailureRateLimited {
		t.Fatalf("expected rate limited, got %v", res.Failure)
	}
}

func TestSignInRecordsFailureAfterCallerCancels(t *testing.T) {
	store := newFakeAccounts()
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	id := seed(t, store, "ivy", "pw")
	deps := newSignInDeps(t, store, clock)
	deps.CompareAndSwap = func(ctx context.Context, id string, v int64, m AccountMutation) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return store.cas(ctx, id, v, m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := RunSignIn(ctx, SignInInput{Username: "ivy", Password: "bad"}, deps)
	if res.Failure != SignInFailureInvalidCredentials {
		t.Fatalf("unexpected %v (%v)", res.Failure, res.Err)
	}
	if got := store.get(id).LoginAttempts; got != 1 {
		t.Fatalf("attempts=%d want 1", got)
	}
}
