// Command mpauth-loadtest fires concurrent wrong-password sign-ins at one
// account and checks that the lockout counter saw every attempt and that the
// lock engaged exactly once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/store/memstore"
	"github.com/MrEthical07/mpauth/store/redisstore"
)

const (
	username = "storm-target"
	password = "the-right-password"
)

func main() {
	var (
		requests    = flag.Int("requests", 2000, "wrong-password attempts to send")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		maxAttempts = flag.Int("max-attempts", 5, "lockout threshold")
		casRetries  = flag.Int("cas-retries", 64, "compare-and-swap retries per attempt")
		storeKind   = flag.String("store", "memory", "account store: memory|redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *requests <= 0 || *concurrency <= 0 || *maxAttempts <= 0 {
		fmt.Fprintln(os.Stderr, "requests, concurrency, and max-attempts must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	var accounts mpauth.AccountStore
	switch *storeKind {
	case "memory":
		accounts = memstore.New()
	case "redis":
		accounts = redisstore.New(client, fmt.Sprintf("mpauth-loadtest:%d:", time.Now().UnixNano()))
	default:
		fmt.Fprintf(os.Stderr, "unknown store %q\n", *storeKind)
		os.Exit(2)
	}

	cfg := mpauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("mpauth-loadtest-signing-secret-0123456789")
	cfg.Lockout.MaxAttempts = *maxAttempts
	cfg.Store.MaxCASRetries = *casRetries
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	engine, err := mpauth.New().WithConfig(cfg).WithRedis(client).WithAccountStore(accounts).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	accountID, err := engine.SignUp(ctx, username, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signup failed: %v\n", err)
		os.Exit(1)
	}

	res := runStorm(ctx, engine, *requests, *concurrency)

	acc, err := accounts.FindByID(ctx, accountID)
	if err != nil || acc == nil {
		fmt.Fprintf(os.Stderr, "reload account: %v\n", err)
		os.Exit(1)
	}
	snapshot := engine.MetricsSnapshot()

	fmt.Println("---- results ----")
	printStats(res)
	fmt.Printf("stored attempts=%d lock_engaged=%d locked_until=%v\n",
		acc.LoginAttempts, snapshot.Counters[mpauth.MetricLockEngaged], acc.LockUntil)

	ok := true
	if got := int64(acc.LoginAttempts) + res.conflicts; got != int64(*requests) {
		fmt.Printf("FAIL: attempts(%d)+conflicts(%d) != requests(%d)\n", acc.LoginAttempts, res.conflicts, *requests)
		ok = false
	}
	if engaged := snapshot.Counters[mpauth.MetricLockEngaged]; engaged != 1 {
		fmt.Printf("FAIL: lock engaged %d times, want 1\n", engaged)
		ok = false
	}
	if res.conflicts == 0 && res.invalid != int64(*maxAttempts-1) {
		fmt.Printf("FAIL: %d invalid-credential answers, want %d\n", res.invalid, *maxAttempts-1)
		ok = false
	}
	if res.other > 0 {
		fmt.Printf("FAIL: %d unexpected errors\n", res.other)
		ok = false
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println("OK")
}

type stormResult struct {
	total     time.Duration
	invalid   int64
	locked    int64
	conflicts int64
	other     int64
	latencies []time.Duration
}

func runStorm(ctx context.Context, engine *mpauth.Engine, requests, concurrency int) stormResult {
	var (
		wg        sync.WaitGroup
		cursor    int64
		res       stormResult
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, requests)
	)
	req := mpauth.SignInRequest{Username: username, Password: "wrong-password"}

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if int(atomic.AddInt64(&cursor, 1)) > requests {
					return
				}
				t0 := time.Now()
				_, err := engine.SignIn(ctx, req)
				d := time.Since(t0)
				switch {
				case errors.Is(err, mpauth.ErrInvalidCredentials):
					atomic.AddInt64(&res.invalid, 1)
				case errors.Is(err, mpauth.ErrAccountLocked):
					atomic.AddInt64(&res.locked, 1)
				case errors.Is(err, mpauth.ErrStoreConflict):
					atomic.AddInt64(&res.conflicts, 1)
				default:
					atomic.AddInt64(&res.other, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	res.total = time.Since(start)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	res.latencies = latencies
	return res
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(r stormResult) {
	opsPerS := 0.0
	if r.total > 0 {
		opsPerS = float64(len(r.latencies)) / r.total.Seconds()
	}
	fmt.Printf("signin: ops=%d invalid=%d locked=%d conflicts=%d other=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		len(r.latencies),
		r.invalid,
		r.locked,
		r.conflicts,
		r.other,
		r.total.Round(time.Millisecond),
		opsPerS,
		percentile(r.latencies, 50).Round(time.Microsecond),
		percentile(r.latencies, 95).Round(time.Microsecond),
		percentile(r.latencies, 99).Round(time.Microsecond),
	)
}
