package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/mpauth"
)

// Envelope is the body of every response.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

const (
	codeOK      = 0
	codeFailure = 1
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Code: codeOK, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Code: codeFailure, Message: message, Data: data})
}

// failure describes how an engine error is rendered.
type failure struct {
	status   int
	code     int
	message  string
	data     any
	internal bool
}

// classify maps an engine error to its response. Internal failures carry the
// raw error text only outside production mode.
func classify(err error, production bool) failure {
	var locked *mpauth.LockedError
	if errors.As(err, &locked) {
		return failure{
			status:  http.StatusLocked,
			code:    codeFailure,
			message: "account locked",
			data:    map[string]string{"lock_until": locked.Until.UTC().Format(time.RFC3339)},
		}
	}
	var provErr *mpauth.ProviderError
	if errors.As(err, &provErr) {
		code := provErr.Code
		if code == codeOK {
			code = codeFailure
		}
		return failure{status: http.StatusBadGateway, code: code, message: provErr.Message}
	}

	f := failure{code: codeFailure, message: err.Error()}
	switch {
	case errors.Is(err, mpauth.ErrInvalidInput):
		f.status, f.message = http.StatusBadRequest, "invalid input"
	case errors.Is(err, mpauth.ErrInvalidCredentials):
		f.status = http.StatusUnauthorized
	case errors.Is(err, mpauth.ErrCaptchaMismatch):
		f.status = http.StatusBadRequest
	case errors.Is(err, mpauth.ErrWrongPassword):
		f.status = http.StatusForbidden
	case errors.Is(err, mpauth.ErrUsernameTaken), errors.Is(err, mpauth.ErrAlreadyRegistered):
		f.status = http.StatusConflict
	case errors.Is(err, mpauth.ErrNotRegistered):
		f.status = http.StatusNotFound
	case errors.Is(err, mpauth.ErrNotAuthenticated):
		f.status, f.message = http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, mpauth.ErrAccountNotFound):
		f.status = http.StatusNotFound
	case errors.Is(err, mpauth.ErrSignatureMismatch):
		f.status = http.StatusBadRequest
	case errors.Is(err, mpauth.ErrDecryption):
		f.status, f.message = http.StatusBadRequest, mpauth.ErrDecryption.Error()
	case errors.Is(err, mpauth.ErrRateLimited):
		f.status, f.message = http.StatusTooManyRequests, mpauth.ErrRateLimited.Error()
	case errors.Is(err, mpauth.ErrStoreConflict):
		f.status = http.StatusConflict
	case errors.Is(err, mpauth.ErrTimeout):
		f.status = http.StatusGatewayTimeout
	case errors.Is(err, mpauth.ErrProviderUnavailable):
		f.status, f.internal = http.StatusBadGateway, true
	case errors.Is(err, mpauth.ErrStoreUnavailable), errors.Is(err, mpauth.ErrRevocationUnavailable), errors.Is(err, mpauth.ErrEngineNotReady):
		f.status, f.internal = http.StatusServiceUnavailable, true
	default:
		f.status, f.internal = http.StatusInternalServerError, true
	}

	if f.internal && production {
		f.message = http.StatusText(f.status)
	}
	return f
}
