// Package auth mints and verifies the HS256 access tokens the API accepts.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mivahub/mivahub-backend/pkg/config"
)

var (
	ErrExpired = errors.New("auth: token expired")
	ErrInvalid = errors.New("auth: token invalid")
)

var method = jwt.SigningMethodHS256

// Keys holds one signing configuration. Build it once per process.
type Keys struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewKeys(cfg config.JWTConfig) (*Keys, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("auth: jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("auth: jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, errors.New("auth: jwt expiration minutes must be positive")
	}
	return &Keys{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(max(cfg.Leeway, 0)),
		),
	}, nil
}

// Mint signs a token for sub issued at now.
func (k *Keys) Mint(now time.Time, sub Subject) (string, error) {
	claims := Claims{
		UserID: sub.UserID,
		Email:  strings.TrimSpace(sub.Email),
		Role:   sub.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    k.issuer,
			Subject:   sub.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", fmt.Errorf("auth: mint: %w", err)
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and lifetime. Failures wrap ErrExpired or
// ErrInvalid so callers can tell a stale session from a forged one.
func (k *Keys) Verify(raw string) (*Claims, error) {
	var claims Claims
	_, err := k.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return k.secret, nil
	})
	switch {
	case err == nil:
		return &claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
}
