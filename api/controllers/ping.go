package controllers

import (
	"net/http"

	"github.com/mivahub/mivahub-backend/api/middleware"
	"github.com/mivahub/mivahub-backend/api/responses"
)

// Ping answers a liveness probe for one route group. Behind Auth it echoes
// the caller so clients can check which identity their token resolves to.
func Ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"scope": scope, "status": "ok"}
		if id, ok := middleware.IdentityFrom(r.Context()); ok {
			body["user_id"] = id.UserID.String()
			body["role"] = string(id.Role)
		}
		responses.WriteSuccess(w, body)
	}
}
