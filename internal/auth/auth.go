// Package auth turns bearer tokens into caller identities. Tokens are issued
// by the identity service; this side only verifies them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/config"
)

var (
	// ErrInvalidToken is returned when a token is malformed, carries a bad
	// signature, or otherwise fails verification.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken is returned when a token's expiry has passed.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrMissingToken is returned when no token was provided at all.
	ErrMissingToken = errors.New("authentication token is missing")
)

// Identity is the verified caller extracted from a token.
type Identity struct {
	UserID uuid.UUID
}

// Verifier validates access tokens.
type Verifier interface {
	// Verify checks the provided token string and returns the caller's
	// identity, or ErrMissingToken, ErrExpiredToken, or ErrInvalidToken.
	Verify(ctx context.Context, tokenString string) (*Identity, error)
}

// tokenClaims is the claim structure shared with the identity service.
type tokenClaims struct {
	UserID    uuid.UUID `json:"uid"`
	TokenType string    `json:"type"`
	jwt.RegisteredClaims
}

// hmacVerifier verifies HMAC-SHA256 signed tokens.
type hmacVerifier struct {
	signingKey []byte
	timeFunc   func() time.Time
	clockSkew  time.Duration
}

var _ Verifier = (*hmacVerifier)(nil)

// NewVerifier creates a Verifier from the auth configuration.
func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters")
	}
	return &hmacVerifier{
		signingKey: []byte(cfg.JWTSecret),
		timeFunc:   time.Now,
		// Tolerate minor clock drift between this service and the issuer.
		clockSkew: 2 * time.Minute,
	}, nil
}

func (v *hmacVerifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.timeFunc),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&tokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.signingKey, nil
		},
		parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != "access" {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return &Identity{UserID: claims.UserID}, nil
}
