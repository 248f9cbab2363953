package security

import (
	"net/http"
)

// HeadersMiddleware adds hardening headers suited to a JSON API.
func HeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Prevent MIME type sniffing
		h.Set("X-Content-Type-Options", "nosniff")

		// Responses are data, never documents to frame or render
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-site")

		// Submissions carry personal details
		h.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
