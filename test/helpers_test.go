//go:build integration

package test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/store/memstore"
	"github.com/MrEthical07/mpauth/store/redisstore"
)

type backend struct {
	name  string
	store func(rdb redis.UniversalClient) mpauth.AccountStore
}

var backends = []backend{
	{name: "memstore", store: func(redis.UniversalClient) mpauth.AccountStore { return memstore.New() }},
	{name: "redisstore", store: func(rdb redis.UniversalClient) mpauth.AccountStore { return redisstore.New(rdb, "") }},
}

func integrationConfig() mpauth.Config {
	cfg := mpauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("integration-secret-0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Store.MaxCASRetries = 64
	cfg.Metrics.Enabled = true
	return cfg
}

func newIntegrationEngine(t *testing.T, b backend, cfg mpauth.Config) (*mpauth.Engine, mpauth.AccountStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	accounts := b.store(rdb)

	engine, err := mpauth.New().WithConfig(cfg).WithRedis(rdb).WithAccountStore(accounts).Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return engine, accounts, mr
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) { fn(t, b) })
	}
}

func newClient(t *testing.T, addr string) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
