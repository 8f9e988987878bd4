package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/logger"
)

const (
	requestIDHeader     = "X-Request-Id"
	correlationIDHeader = "X-Correlation-Id"
	maxRequestIDLength  = 128
)

// RequestID adopts a well-formed inbound X-Request-Id, or the worker's
// X-Correlation-Id on callbacks, and mints a UUID otherwise. The id is echoed
// on the response and carried on the context so outbound worker calls reuse it.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r)
			w.Header().Set(requestIDHeader, reqID)

			ctx := logger.ContextWithRequestID(r.Context(), reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(r *http.Request) string {
	for _, header := range []string{requestIDHeader, correlationIDHeader} {
		if v := strings.TrimSpace(r.Header.Get(header)); validRequestID(v) {
			return v
		}
	}
	return uuid.NewString()
}

// validRequestID accepts printable ASCII without spaces so the id is safe to
// echo into headers and log lines.
func validRequestID(v string) bool {
	if v == "" || len(v) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return false
		}
	}
	return true
}
