// Package auth mints and verifies the HS256 access tokens that identify
// callers. A token carries only the user id in sub; listing roles are
// derived per request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bidhaven-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Claims are the registered claims of an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Signer holds the validated JWT settings.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	var missing []string
	if cfg.Secret == "" {
		missing = append(missing, "secret")
	}
	if cfg.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if cfg.ExpirationMinutes <= 0 {
		missing = append(missing, "positive expiration")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("jwt config: %v required", missing)
	}
	return &Signer{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

// Mint issues a token for userID valid from now for the configured TTL.
func (s *Signer) Mint(now time.Time, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", errors.New("user id required")
	}
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the caller id.
// Failures wrap ErrExpired or ErrInvalid.
func (s *Signer) Verify(raw string) (uuid.UUID, error) {
	var claims Claims
	_, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return uuid.Nil, fmt.Errorf("%w: %v", ErrExpired, err)
	case err != nil:
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	id, err := claims.UserID()
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrInvalid)
	}
	return id, nil
}
