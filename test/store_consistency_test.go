//go:build integration

package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/mpauth"
)

func TestScenarioDuplicateUsername(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		engine, _, _ := newIntegrationEngine(t, b, integrationConfig())
		ctx := context.Background()

		if _, err := engine.SignUp(ctx, "alice", "pw1"); err != nil {
			t.Fatalf("first SignUp failed: %v", err)
		}
		if _, err := engine.SignUp(ctx, "alice", "pw2"); !errors.Is(err, mpauth.ErrUsernameTaken) {
			t.Fatalf("expected ErrUsernameTaken, got %v", err)
		}
	})
}

func TestScenarioLockoutHoldsForCorrectPassword(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		engine, accounts, _ := newIntegrationEngine(t, b, integrationConfig())
		ctx := context.Background()

		id, err := engine.SignUp(ctx, "bob", "pw-bob")
		if err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		wrong := mpauth.SignInRequest{Username: "bob", Password: "nope"}
		for i := 1; i <= 4; i++ {
			if _, err := engine.SignIn(ctx, wrong); !errors.Is(err, mpauth.ErrInvalidCredentials) {
				t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
			}
		}
		if _, err := engine.SignIn(ctx, wrong); !errors.Is(err, mpauth.ErrAccountLocked) {
			t.Fatalf("attempt 5: expected ErrAccountLocked, got %v", err)
		}
		if _, err := engine.SignIn(ctx, mpauth.SignInRequest{Username: "bob", Password: "pw-bob"}); !errors.Is(err, mpauth.ErrAccountLocked) {
			t.Fatalf("correct password while locked: expected ErrAccountLocked, got %v", err)
		}

		acc, err := accounts.FindByID(ctx, id)
		if err != nil || acc == nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if acc.LoginAttempts != 6 || acc.LockUntil == nil {
			t.Fatalf("unexpected stored state attempts=%d lock=%v", acc.LoginAttempts, acc.LockUntil)
		}
	})
}

func TestScenarioTokenResolvesAndRevokes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		engine, _, _ := newIntegrationEngine(t, b, integrationConfig())
		ctx := context.Background()

		if _, err := engine.SignUp(ctx, "carol", "pw-carol"); err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		res, err := engine.SignIn(ctx, mpauth.SignInRequest{Username: "carol", Password: "pw-carol"})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}

		auth, err := engine.Validate(ctx, res.Token)
		if err != nil || auth.Username != "carol" {
			t.Fatalf("Validate: %+v %v", auth, err)
		}

		if err := engine.SignOut(ctx, res.Token); err != nil {
			t.Fatalf("SignOut failed: %v", err)
		}
		if _, err := engine.Validate(ctx, res.Token); !errors.Is(err, mpauth.ErrTokenRevoked) {
			t.Fatalf("expected ErrTokenRevoked, got %v", err)
		}
	})
}

func TestConcurrentWrongPasswordsAllCounted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		cfg := integrationConfig()
		cfg.Lockout.MaxAttempts = 1000
		engine, accounts, _ := newIntegrationEngine(t, b, cfg)
		ctx := context.Background()

		id, err := engine.SignUp(ctx, "dave", "pw-dave")
		if err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}

		const workers, perWorker = 8, 5
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					_, _ = engine.SignIn(ctx, mpauth.SignInRequest{Username: "dave", Password: "nope"})
				}
			}()
		}
		wg.Wait()

		acc, err := accounts.FindByID(ctx, id)
		if err != nil || acc == nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		conflicts := engine.MetricsSnapshot().Counters[mpauth.MetricStoreConflict]
		if uint64(acc.LoginAttempts)+conflicts != workers*perWorker {
			t.Fatalf("expected %d counted attempts, got %d (+%d conflicts)", workers*perWorker, acc.LoginAttempts, conflicts)
		}
	})
}

func TestRevocationSurvivesEngineRestart(t *testing.T) {
	b := backends[1]
	engine, accounts, mr := newIntegrationEngine(t, b, integrationConfig())
	ctx := context.Background()

	if _, err := engine.SignUp(ctx, "erin", "pw-erin"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	res, err := engine.SignIn(ctx, mpauth.SignInRequest{Username: "erin", Password: "pw-erin"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if err := engine.SignOut(ctx, res.Token); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	// A second instance sharing Redis sees the revocation.
	rdb2 := newClient(t, mr.Addr())
	second, err := mpauth.New().WithConfig(integrationConfig()).WithRedis(rdb2).WithAccountStore(accounts).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer second.Close()

	if _, err := second.Validate(ctx, res.Token); !errors.Is(err, mpauth.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on second instance, got %v", err)
	}
}
