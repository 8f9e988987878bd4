package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/mivahub/mivahub-backend/api/responses"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

// ServiceToken guards internal routes called by the processing worker with a
// shared bearer token.
func ServiceToken(expected string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if expected == "" || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid service token"))
				return
			}
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithField(ctx, "caller", "worker")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
