package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS answers preflights and sets CORS headers for allowed origins. A
// request whose Origin is not allowed gets a 403; requests without an Origin
// (curl, server to server, same-origin GET) pass through.
func CORS(allowedOrigins []string, logger *slog.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(o)] = true
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return func(next http.Handler) http.Handler {
		withHeaders := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !allowed["*"] && !allowed[strings.ToLower(origin)] {
				logger.Warn("cors: origin rejected", "origin", origin, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Not allowed by CORS"}`))
				return
			}
			withHeaders.ServeHTTP(w, r)
		})
	}
}
