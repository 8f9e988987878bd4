package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/enums"
)

// Subject is who a token speaks for.
type Subject struct {
	UserID uuid.UUID
	Email  string
	Role   enums.UserRole
}

// Claims is the access token body. The registered sub claim mirrors UserID.
type Claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Email  string         `json:"email,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt calls it through
// jwt.ClaimsValidator.
func (c Claims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user id")
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return errors.New("token subject does not match user id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token carries invalid role %q", c.Role)
	}
	return nil
}

func (c Claims) Identity() Subject {
	return Subject{UserID: c.UserID, Email: c.Email, Role: c.Role}
}
