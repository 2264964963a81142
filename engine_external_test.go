package mpauth

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/mpauth/payload"
)

var testSessionKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

func TestExchangeCode(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.provider.set("c1", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey, UnionID: "u-1"})
	ctx := context.Background()

	ident, err := env.engine.ExchangeCode(ctx, "c1")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if ident.OpenID != "o-1" || ident.UnionID != "u-1" {
		t.Fatalf("unexpected identity %+v", ident)
	}

	if _, err := env.engine.ExchangeCode(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	_, err = env.engine.ExchangeCode(ctx, "unknown")
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Code != 40029 || perr.Message != "invalid code" {
		t.Fatalf("expected provider error passed through, got %v", err)
	}
}

func TestExchangeCodeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.Timeout = 20 * time.Millisecond
	env := newTestEngine(t, cfg)
	env.provider.fail("slow", context.DeadlineExceeded)

	if _, err := env.engine.ExchangeCode(context.Background(), "slow"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExchangeCodeWithoutProvider(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	e, err := New().WithConfig(testConfig()).WithRedis(rdb).WithAccountStore(newMockAccountStore()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	if _, err := e.ExchangeCode(context.Background(), "c1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.SignInViaExternalIdentity(context.Background(), "c1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestExternalSignUpThenSignIn(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.provider.set("c1", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey})
	env.provider.set("c2", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey})
	ctx := context.Background()

	if _, err := env.engine.SignInViaExternalIdentity(ctx, "c1"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}

	up, err := env.engine.SignUpViaExternalIdentity(ctx, "c1")
	if err != nil {
		t.Fatalf("external sign-up failed: %v", err)
	}
	if up.Token == "" || up.AccountID == "" {
		t.Fatalf("expected token for new account, got %+v", up)
	}

	if _, err := env.engine.SignUpViaExternalIdentity(ctx, "c2"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	in, err := env.engine.SignInViaExternalIdentity(ctx, "c2")
	if err != nil {
		t.Fatalf("external sign-in failed: %v", err)
	}
	if in.AccountID != up.AccountID {
		t.Fatalf("expected same account, got %s vs %s", in.AccountID, up.AccountID)
	}

	auth, err := env.engine.Validate(ctx, in.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if auth.Username != "o-1" {
		t.Fatalf("expected username to be the open id, got %q", auth.Username)
	}

	acc := env.accounts.get(t, "o-1")
	if acc.PasswordHash == "" {
		t.Fatal("expected placeholder password digest")
	}
	// Nobody knows the placeholder secret.
	if _, err := signIn(env.engine, "o-1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := signIn(env.engine, "o-1", "guess"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestExternalSignInBypassesLockout(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.provider.set("c1", ExternalIdentity{OpenID: "o-9", SessionKey: testSessionKey})
	ctx := context.Background()

	if _, err := env.engine.SignUpViaExternalIdentity(ctx, "c1"); err != nil {
		t.Fatalf("external sign-up failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, _ = signIn(env.engine, "o-9", "guess")
	}
	if _, err := signIn(env.engine, "o-9", "guess"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected password path locked, got %v", err)
	}
	if _, err := env.engine.SignInViaExternalIdentity(ctx, "c1"); err != nil {
		t.Fatalf("external sign-in should ignore lockout: %v", err)
	}
}

func encryptProfile(t *testing.T, appID string) (string, string) {
	t.Helper()
	plain := []byte(`{"openId":"o-1","nickName":"Band","gender":1,"watermark":{"appid":"` + appID + `","timestamp":1700000000}}`)
	ct, iv, err := payload.Encrypt(testSessionKey, plain, nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	return ct, iv
}

func signedProfileRequest(code, ct, iv string) ProfileRequest {
	raw := `{"nickName":"Band","gender":1}`
	return ProfileRequest{
		Code:          code,
		EncryptedData: ct,
		IV:            iv,
		RawData:       raw,
		Signature:     payload.Sign(raw, testSessionKey),
	}
}

func TestDecryptProfile(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.provider.set("c1", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey})
	ctx := context.Background()

	ct, iv := encryptProfile(t, testAppID)
	raw := `{"nickName":"Band","gender":1}`

	profile, err := env.engine.DecryptProfile(ctx, ProfileRequest{
		Code:          "c1",
		EncryptedData: ct,
		IV:            iv,
		RawData:       raw,
		Signature:     payload.Sign(raw, testSessionKey),
	})
	if err != nil {
		t.Fatalf("DecryptProfile failed: %v", err)
	}
	if profile.NickName != "Band" || profile.OpenID != "o-1" || profile.Watermark.AppID != testAppID {
		t.Fatalf("unexpected profile %+v", profile)
	}

	_, err = env.engine.DecryptProfile(ctx, ProfileRequest{
		Code:          "c1",
		EncryptedData: ct,
		IV:            iv,
		RawData:       raw,
		Signature:     payload.Sign(raw+" ", testSessionKey),
	})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	if got := env.engine.MetricsSnapshot().Counters[MetricProfileRejected]; got != 1 {
		t.Fatalf("expected one rejected profile, got %d", got)
	}
}

func TestDecryptProfileRejectsForeignWatermark(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.provider.set("c1", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey})

	ct, iv := encryptProfile(t, "someone-else")
	_, err := env.engine.DecryptProfile(context.Background(), signedProfileRequest("c1", ct, iv))
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecryptProfileCorruptedCiphertext(t *testing.T) {
	env := newTestEngine(t, testConfig())
	env.provider.set("c1", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey})

	ct, iv := encryptProfile(t, testAppID)
	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[len(raw)-1] ^= 0xff
	bad := base64.StdEncoding.EncodeToString(raw)

	_, err := env.engine.DecryptProfile(context.Background(), signedProfileRequest("c1", bad, iv))
	if !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecryptProfileSignatureCheckDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Security.VerifyPayloadSignature = false
	env := newTestEngine(t, cfg)
	env.provider.set("c1", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey})

	ct, iv := encryptProfile(t, testAppID)
	_, err := env.engine.DecryptProfile(context.Background(), ProfileRequest{
		Code:          "c1",
		EncryptedData: ct,
		IV:            iv,
		RawData:       "anything",
		Signature:     "not-a-signature",
	})
	if err != nil {
		t.Fatalf("expected unverified profile to pass, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricProfileUnverified]; got != 1 {
		t.Fatalf("expected one unverified profile, got %d", got)
	}
}

func TestDecryptProfileRequiresSignatureWhenVerifying(t *testing.T) {
	cfg := testConfig()
	cfg.Security.ProductionMode = true
	cfg.Password.Memory = 64 * 1024
	env := newTestEngine(t, cfg)
	env.provider.set("c1", ExternalIdentity{OpenID: "o-1", SessionKey: testSessionKey})

	ct, iv := encryptProfile(t, testAppID)
	for _, req := range []ProfileRequest{
		{Code: "c1", EncryptedData: ct, IV: iv},
		{Code: "c1", EncryptedData: ct, IV: iv, RawData: `{"nickName":"Band"}`},
		{Code: "c1", EncryptedData: ct, IV: iv, Signature: payload.Sign("", testSessionKey)},
	} {
		profile, err := env.engine.DecryptProfile(context.Background(), req)
		if !errors.Is(err, ErrSignatureMismatch) {
			t.Fatalf("expected ErrSignatureMismatch, got profile=%+v err=%v", profile, err)
		}
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricProfileUnverified]; got != 0 {
		t.Fatalf("no profile may pass unverified, got %d", got)
	}
}

func TestDecryptProfileMissingFields(t *testing.T) {
	env := newTestEngine(t, testConfig())

	_, err := env.engine.DecryptProfile(context.Background(), ProfileRequest{Code: "c1", IV: "x"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if env.provider.calls != 0 {
		t.Fatalf("provider must not be called for malformed input, got %d calls", env.provider.calls)
	}
}
