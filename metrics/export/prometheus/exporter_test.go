package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/store/memstore"
)

type fakeSource struct {
	snapshot mpauth.MetricsSnapshot
	dropped  map[string]uint64
	report   mpauth.SecurityReport
}

func (f fakeSource) MetricsSnapshot() mpauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDroppedByType() map[string]uint64   { return f.dropped }
func (f fakeSource) SecurityReport() mpauth.SecurityReport   { return f.report }

func emptySnapshot() mpauth.MetricsSnapshot {
	return mpauth.MetricsSnapshot{
		Counters:   map[mpauth.MetricID]uint64{},
		Histograms: map[mpauth.MetricID][]uint64{},
	}
}

func defaultReport() mpauth.SecurityReport {
	return mpauth.SecurityReport{
		PasswordScheme:           "migrating",
		SigningAlgorithm:         "hs256",
		AccessTTL:                time.Minute,
		LockoutMaxAttempts:       5,
		LockoutDuration:          2 * time.Hour,
		PayloadSignatureVerified: true,
	}
}

func TestRenderPostureWithoutCounters(t *testing.T) {
	out := New(fakeSource{snapshot: emptySnapshot(), report: defaultReport()}).Render()

	if strings.Contains(out, "mpauth_signin_success_total") {
		t.Fatalf("counters must be omitted when metrics are disabled:\n%s", out)
	}
	for _, want := range []string{
		"mpauth_lockout_max_attempts 5",
		"mpauth_lockout_duration_seconds 7200",
		"mpauth_access_token_ttl_seconds 60",
		`mpauth_security_info{password_scheme="migrating",signing_algorithm="hs256",production="false",payload_signature="true",captcha="false"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderCountersHistogramAndDrops(t *testing.T) {
	exp := New(fakeSource{
		snapshot: mpauth.MetricsSnapshot{
			Counters: map[mpauth.MetricID]uint64{
				mpauth.MetricSignInSuccess: 7,
				mpauth.MetricLockEngaged:   1,
			},
			Histograms: map[mpauth.MetricID][]uint64{
				mpauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: map[string]uint64{"signin_failure": 3, "profile_decrypted": 1},
		report:  defaultReport(),
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE mpauth_signin_success_total counter",
		"mpauth_signin_success_total 7",
		"mpauth_lock_engaged_total 1",
		"mpauth_signin_failure_total 0",
		`mpauth_validate_latency_seconds_bucket{le="0.005"} 1`,
		`mpauth_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"mpauth_validate_latency_seconds_count 36",
		`mpauth_audit_dropped_total{event_type="profile_decrypted"} 1`,
		`mpauth_audit_dropped_total{event_type="signin_failure"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Index(out, `event_type="profile_decrypted"`) > strings.Index(out, `event_type="signin_failure"`) {
		t.Fatalf("drop series must be sorted by event type")
	}
}

func TestServeHTTPContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	New(fakeSource{snapshot: emptySnapshot(), report: defaultReport()}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != contentType {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestRenderFromEngine(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := mpauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Lockout.MaxAttempts = 3
	cfg.Metrics.Enabled = true

	engine, err := mpauth.New().WithConfig(cfg).WithRedis(rdb).WithAccountStore(memstore.New()).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.SignUp(ctx, "alice", "pw"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	_, _ = engine.SignIn(ctx, mpauth.SignInRequest{Username: "alice", Password: "wrong"})

	out := New(engine).Render()
	for _, want := range []string{"mpauth_signup_success_total 1", "mpauth_signin_failure_total 1", "mpauth_lockout_max_attempts 3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func BenchmarkRender(b *testing.B) {
	exp := New(fakeSource{
		snapshot: mpauth.MetricsSnapshot{
			Counters: map[mpauth.MetricID]uint64{
				mpauth.MetricSignInSuccess:   1000,
				mpauth.MetricSignInFailure:   40,
				mpauth.MetricSignInLocked:    12,
				mpauth.MetricValidateSuccess: 8000,
				mpauth.MetricSignOut:         20,
			},
			Histograms: map[mpauth.MetricID][]uint64{
				mpauth.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: map[string]uint64{"signin_failure": 2},
		report:  defaultReport(),
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
