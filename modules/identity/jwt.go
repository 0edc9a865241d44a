// Package identity verifies the signed identity tokens issued by the campus
// identity service and resolves them into chat identities.
package identity

import (
	"errors"
	"time"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Config holds token settings.
type Config struct {
	SecretKey string
	Issuer    string
	TTL       time.Duration
}

// Claims are the identity claims carried by a token.
type Claims struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the chat identity described by the claims.
func (c *Claims) Identity() *domain.Identity {
	return &domain.Identity{
		UserID: c.UserID,
		Name:   c.Name,
		Email:  c.Email,
		Role:   c.Role,
	}
}

// TokenManager signs and validates identity tokens.
type TokenManager struct {
	config Config
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(config Config) *TokenManager {
	return &TokenManager{config: config}
}

// Issue signs a token for id. The chat never logs users in; this exists for
// the identity service, local tooling and tests.
func (m *TokenManager) Issue(id domain.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Name:   id.Name,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// Validate validates the token and returns the claims if valid.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(m.config.SecretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
