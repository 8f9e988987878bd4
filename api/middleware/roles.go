package middleware

import (
	"context"
	"net/http"

	"github.com/mivahub/mivahub-backend/api/responses"
	"github.com/mivahub/mivahub-backend/pkg/config"
	"github.com/mivahub/mivahub-backend/pkg/enums"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
	"github.com/mivahub/mivahub-backend/pkg/logger"
)

// RequireAdmin admits callers with the admin role or an allow-listed email.
func RequireAdmin(academic config.AcademicConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(r.Context(), academic) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsAdmin reports whether the authenticated caller has admin rights.
func IsAdmin(ctx context.Context, academic config.AcademicConfig) bool {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return false
	}
	return id.Role == enums.UserRoleAdmin || academic.IsAdminEmail(id.Email)
}
