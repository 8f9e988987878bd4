package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/api/middleware"
	pkgerrors "github.com/mivahub/mivahub-backend/pkg/errors"
)

func callerID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id.UserID, nil
}
