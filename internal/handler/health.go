package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

// Health reports liveness and seconds since started.
func Health(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "OK",
			"timestamp": now.UTC().Format(time.RFC3339),
			"uptime":    now.Sub(started).Seconds(),
		})
	}
}

// Healthcheck is the plain-text probe used by load balancers.
func Healthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
