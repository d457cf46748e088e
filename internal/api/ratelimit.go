// File: internal/api/ratelimit.go
package api

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/docketpilot/internal/config"
)

// RateLimit applies one token bucket to every request. A zero rate disables it.
func RateLimit(cfg config.RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn("Rate limit exceeded.", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
				w.Header().Set("Retry-After", "1")
				respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
