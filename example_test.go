package mpauth_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/store/memstore"
)

// ExampleNew builds an engine over Redis and the in-memory account store.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := mpauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("replace-with-a-32-byte-or-longer-secret")

	engine, err := mpauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memstore.New()).
		Build()
	if err != nil {
		return
	}
	defer engine.Close()
}

// ExampleEngine_SignIn shows how to tell a lock apart from bad credentials.
func ExampleEngine_SignIn() {
	var engine *mpauth.Engine
	_, err := engine.SignIn(context.Background(), mpauth.SignInRequest{Username: "alice", Password: "password"})

	var locked *mpauth.LockedError
	switch {
	case errors.As(err, &locked):
		fmt.Println("locked until", locked.Until)
	case errors.Is(err, mpauth.ErrInvalidCredentials):
		fmt.Println("bad username or password")
	case err != nil:
		fmt.Println("try again later")
	}
}

// ExampleEngine_MetricsSnapshot reads in-process counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *mpauth.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[mpauth.MetricLockEngaged]
}
