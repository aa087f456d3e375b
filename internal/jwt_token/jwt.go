// Package jwttoken issues and validates the HMAC signed tokens that carry an
// actor's identity and role.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"labelcheck/pkg/domain"
	dErrors "labelcheck/pkg/domain-errors"
)

const issuer = "labelcheck"

// Claims identifies the actor. The subject is the actor ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies actor tokens.
type Service struct {
	signingKey []byte
	now        func() time.Time
}

func New(signingKey string) *Service {
	return &Service{signingKey: []byte(signingKey), now: time.Now}
}

// Issue signs a token for the actor valid for ttl.
func (s *Service) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if !actor.Role.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "actor role must be manager or officer")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken verifies the signature, expiry and issuer and resolves the actor.
func (s *Service) ValidateToken(tokenString string) (domain.Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token role")
	}
	return domain.Actor{ID: claims.Subject, Role: role}, nil
}
