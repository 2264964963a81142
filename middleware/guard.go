package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/mpauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the account resolved by Guard.
func AuthResultFromContext(ctx context.Context) (*mpauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*mpauth.AuthResult)
	return res, ok
}

// Guard admits requests carrying a bearer token that engine.Validate accepts.
// Rejected tokens get 401; a validation backend outage gets 503.
func Guard(engine *mpauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				if mpauth.IsNotAuthenticated(err) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				if errors.Is(err, mpauth.ErrRevocationUnavailable) || errors.Is(err, mpauth.ErrStoreUnavailable) || errors.Is(err, mpauth.ErrTimeout) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP attaches the caller's address to the request context so the
// engine's per-IP sign-in throttle can see it. The first X-Forwarded-For hop
// is trusted only when trustProxy is set.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r, trustProxy)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(mpauth.WithClientIP(r.Context(), ip)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
