// Package auth issues and verifies access tokens and manages accounts.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"imagegen/internal/apperr"
	"imagegen/internal/config"
	"imagegen/internal/model"
)

// Claims are the JWT claims carried by an access token. Subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and parses HS256 access tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens builds a token codec from config.
func NewTokens(cfg config.AuthConfig) (*Tokens, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET", apperr.ErrMissingConfig)
	}
	ttl := cfg.TokenTTL()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for u and its expiry.
func (t *Tokens) Issue(u *model.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies signature, algorithm, issuer and expiry. Any failure is apperr.ErrUnauthorized.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, apperr.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", apperr.ErrUnauthorized)
	}
	return claims, nil
}
