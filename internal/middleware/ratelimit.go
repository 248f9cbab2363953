package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/driverjobs/formrelay/internal/security"
)

// RateLimit rejects clients that exceed limiter's budget. Clients are keyed
// by the IP in r.RemoteAddr, which is the TCP peer unless RealIP ran first.
func RateLimit(limiter *security.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(limiter.Window().Seconds()))

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests from this IP, please try again later."}`))
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
