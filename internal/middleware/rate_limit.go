package middleware

import (
	"net/http"
	"time"

	"github.com/CallumWaite/gatehouse/pkg/httpx"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds transport-level rate limiting configuration. This
// is a coarse pre-filter in front of the durable throttle counters, not a
// replacement for them.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultVerificationRateLimit bounds verification endpoints to 30
// requests per minute per IP.
func DefaultVerificationRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 30}
}

// RateLimitByIP rate limits requests by client IP. The key comes from
// httpx.ExtractClientIP, the one place forwarding headers are interpreted,
// so a direct client cannot pick its own bucket by setting X-Forwarded-For.
func RateLimitByIP(config RateLimitConfig, ipConfig *httpx.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return httpx.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}
