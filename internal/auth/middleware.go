package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Options configure Middleware.
type Options struct {
	// APIKey is the expected bearer key. Empty disables authentication.
	APIKey string
	// Prefix limits authentication to paths under it, e.g. "/v1/".
	// Empty protects every path.
	Prefix string
	// Limiter, when set, blocks clients after repeated failures.
	Limiter *RateLimiter
	Logger  *slog.Logger
}

// Middleware returns HTTP middleware that requires a valid bearer key on
// protected paths.
func Middleware(opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rl := opts.Limiter

	return func(next http.Handler) http.Handler {
		if opts.APIKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Prefix != "" && !strings.HasPrefix(r.URL.Path, opts.Prefix) {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := ClientIPKeyFunc(r)
			if rl != nil && rl.IsAuthBlocked(clientIP) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", rl.AuthBlockRetryAfter(clientIP)))
				writeAuthError(w, http.StatusTooManyRequests, "too_many_failures", "Too many failed authentication attempts. Try again later.")
				return
			}

			key, err := BearerToken(r)
			if err == nil && !ValidateKey(key, opts.APIKey) {
				err = fmt.Errorf("invalid API key")
			}
			if err != nil {
				blocked := false
				if rl != nil {
					blocked = rl.AuthFailure(clientIP)
				}
				logger.Warn("authentication failed", "client", clientIP, "path", r.URL.Path, "error", err, "blocked", blocked)
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			if rl != nil {
				rl.AuthSuccess(clientIP)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
