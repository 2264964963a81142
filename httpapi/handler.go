package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/internal/logging"
	"github.com/MrEthical07/mpauth/internal/stores"
	"github.com/MrEthical07/mpauth/middleware"
)

const maxBodyBytes = 64 << 10

// CaptchaStore issues and redeems single-use captcha challenges.
type CaptchaStore interface {
	Issue(ctx context.Context) (id string, png []byte, err error)
	Consume(ctx context.Context, id string) (string, error)
}

var _ CaptchaStore = (*stores.CaptchaStore)(nil)

// Handler serves the auth API for one engine.
type Handler struct {
	engine     *mpauth.Engine
	captcha    CaptchaStore
	logger     logging.Logger
	production bool
}

// New returns a Handler. captcha may be nil, in which case GET /api/captcha
// is not served and sign-in runs without a session captcha code.
func New(engine *mpauth.Engine, captcha CaptchaStore, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		engine:     engine,
		captcha:    captcha,
		logger:     logger,
		production: engine.SecurityReport().ProductionMode,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signInRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

type resetPasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type decryptRequest struct {
	Code          string `json:"code"`
	EncryptedData string `json:"encrypted_data"`
	IV            string `json:"iv"`
	RawData       string `json:"raw_data"`
	Signature     string `json:"signature"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newTokenResponse(res *mpauth.SignInResult) tokenResponse {
	return tokenResponse{Token: res.Token, AccountID: res.AccountID, ExpiresAt: res.ExpiresAt.UTC()}
}

// Captcha issues a challenge as a PNG data URL. The answer never leaves the
// server; the client sends back the id with what the user typed.
func (h *Handler) Captcha(w http.ResponseWriter, r *http.Request) {
	if h.captcha == nil {
		writeFailure(w, http.StatusNotFound, "captcha disabled", nil)
		return
	}
	id, img, err := h.captcha.Issue(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "captcha issue failed", "op", "captcha", "err", err)
		h.fail(w, r, "captcha", errors.Join(mpauth.ErrStoreUnavailable, err))
		return
	}
	writeOK(w, "ok", map[string]string{
		"captcha_id": id,
		"image":      "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	})
}

// Ready answers 503 while the revocation backend is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ready(r.Context()); err != nil {
		h.logger.Warn(r.Context(), "not ready", "op", "ready", "err", err)
		writeFailure(w, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	writeOK(w, "ready", nil)
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.engine.SignUp(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, "signup", err)
		return
	}
	writeOK(w, "signed up", map[string]string{"account_id": id})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !h.decode(w, r, &req) {
		return
	}

	var sessionCode string
	if h.captcha != nil && req.CaptchaID != "" {
		code, err := h.captcha.Consume(r.Context(), req.CaptchaID)
		if err != nil {
			h.logger.Error(r.Context(), "captcha consume failed", "op", "signin", "err", err)
			h.fail(w, r, "signin", errors.Join(mpauth.ErrStoreUnavailable, err))
			return
		}
		sessionCode = code
	}

	res, err := h.engine.SignIn(r.Context(), mpauth.SignInRequest{
		Username:           req.Username,
		Password:           req.Password,
		CaptchaCode:        req.CaptchaCode,
		SessionCaptchaCode: sessionCode,
	})
	if err != nil {
		h.fail(w, r, "signin", err)
		return
	}
	writeOK(w, "signed in", newTokenResponse(res))
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		h.fail(w, r, "signout", mpauth.ErrTokenInvalid)
		return
	}
	if err := h.engine.SignOut(r.Context(), token); err != nil {
		h.fail(w, r, "signout", err)
		return
	}
	writeOK(w, "signed out", nil)
}

// ResetPassword must run behind middleware.Guard.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	auth, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		h.fail(w, r, "reset_password", mpauth.ErrNotAuthenticated)
		return
	}
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), auth.AccountID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, r, "reset_password", err)
		return
	}
	writeOK(w, "password updated", nil)
}

// Me must run behind middleware.Guard.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	auth, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		h.fail(w, r, "me", mpauth.ErrNotAuthenticated)
		return
	}
	writeOK(w, "ok", map[string]string{"account_id": auth.AccountID, "username": auth.Username})
}

func (h *Handler) ExternalSignUp(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.SignUpViaExternalIdentity(r.Context(), req.Code)
	if err != nil {
		h.fail(w, r, "external_signup", err)
		return
	}
	writeOK(w, "signed up", newTokenResponse(res))
}

func (h *Handler) ExternalSignIn(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.SignInViaExternalIdentity(r.Context(), req.Code)
	if err != nil {
		h.fail(w, r, "external_signin", err)
		return
	}
	writeOK(w, "signed in", newTokenResponse(res))
}

func (h *Handler) DecryptProfile(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if !h.decode(w, r, &req) {
		return
	}
	profile, err := h.engine.DecryptProfile(r.Context(), mpauth.ProfileRequest{
		Code:          req.Code,
		EncryptedData: req.EncryptedData,
		IV:            req.IV,
		RawData:       req.RawData,
		Signature:     req.Signature,
	})
	if err != nil {
		h.fail(w, r, "decrypt_profile", err)
		return
	}
	writeOK(w, "ok", profile)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeFailure(w, http.StatusBadRequest, "invalid payload", nil)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	f := classify(err, h.production)
	if f.internal {
		h.logger.Warn(r.Context(), "request failed", "op", op, "status", f.status, "err", err)
	}
	writeJSON(w, f.status, Envelope{Code: f.code, Message: f.message, Data: f.data})
}
