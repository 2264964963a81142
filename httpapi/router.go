package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/mpauth/internal/logging"
	"github.com/MrEthical07/mpauth/middleware"
)

// RouterOptions tunes Routes.
type RouterOptions struct {
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// Routes mounts the API on a ServeMux and wraps it with client address
// capture, security headers and request logging.
func (h *Handler) Routes(opts RouterOptions) http.Handler {
	mux := http.NewServeMux()
	guard := middleware.Guard(h.engine)

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, "ok", nil)
	})
	mux.HandleFunc("GET /api/ready", h.Ready)
	mux.HandleFunc("GET /api/captcha", h.Captcha)
	mux.HandleFunc("POST /api/signup", h.SignUp)
	mux.HandleFunc("POST /api/signin", h.SignIn)
	mux.HandleFunc("POST /api/signout", h.SignOut)
	mux.Handle("POST /api/password/reset", guard(http.HandlerFunc(h.ResetPassword)))
	mux.Handle("GET /api/me", guard(http.HandlerFunc(h.Me)))
	mux.HandleFunc("POST /api/external/signup", h.ExternalSignUp)
	mux.HandleFunc("POST /api/external/signin", h.ExternalSignIn)
	mux.HandleFunc("POST /api/external/decrypt", h.DecryptProfile)

	handler := securityHeaders(mux)
	handler = middleware.ClientIP(opts.TrustProxy)(handler)
	return requestLogger(h.logger)(handler)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", rec.size,
			)
		})
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
