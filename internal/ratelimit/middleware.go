package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alpinisme/formation-sync/internal/metrics"
)

// Identity resolves the client identity for limiting. Proxy headers are
// trusted in order: the first address in X-Forwarded-For, then X-Real-IP.
// Without either the caller is pooled under a single anonymous identity.
func Identity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return "anonymous"
}

// Middleware enforces the limiter on every request it wraps. Admission
// state travels back on X-RateLimit headers; a rejection gets a 429 with
// a machine-readable body and a Retry-After hint.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Check(Identity(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.UnixMilli(), 10))

			if !res.Allowed {
				metrics.ObserveRateLimitRejection()
				retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "RATE_LIMIT_EXCEEDED",
					"message":    "request rate limit exceeded, slow down",
					"retryAfter": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
