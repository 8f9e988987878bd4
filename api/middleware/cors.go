package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS applies the browser origin policy. A "*" entry allows any origin but
// then credentials are not allowed, since browsers reject that combination.
func CORS(origins []string) func(http.Handler) http.Handler {
	cleaned := make([]string, 0, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
			continue
		case "*":
			wildcard = true
		}
		cleaned = append(cleaned, o)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: cleaned,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			idempotencyHeader, requestIDHeader,
		},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After", "X-Idempotent-Replay"},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	})
}
