// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinTokenSecretLength is the shortest accepted HS256 signing secret.
const MinTokenSecretLength = 32

// DefaultTokenTTL is the session token lifetime when none is configured.
const DefaultTokenTTL = 90 * 24 * time.Hour

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration

	// Clock overrides time.Now for expiry checks.
	Clock func() time.Time
}

// Claims are the verified contents of a session token.
type Claims struct {
	UserID    ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies stateless session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer validates cfg and returns a TokenIssuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.Secret) < MinTokenSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min_length", MinTokenSecretLength).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code("TOKEN_INVALID_TTL").
			With("ttl", cfg.TTL.String()).
			Errorf("token TTL must be positive")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &TokenIssuer{secret: secret, ttl: cfg.TTL, now: now}, nil
}

// TTL returns the token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for userID issued at issuedAt.
func (t *TokenIssuer) Issue(userID ulid.ULID, issuedAt time.Time) (string, time.Time, error) {
	issuedAt = issuedAt.Truncate(time.Second)
	expiresAt := issuedAt.Add(t.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, algorithm and expiry of raw.
// Failures carry CodeTokenExpired or CodeTokenMalformed.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &rc, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeTokenExpired).Wrapf(err, "token expired")
		}
		return nil, oops.Code(CodeTokenMalformed).Wrapf(err, "token rejected")
	}

	id, err := ulid.ParseStrict(rc.Subject)
	if err != nil {
		return nil, oops.Code(CodeTokenMalformed).Wrapf(err, "token subject")
	}
	if rc.IssuedAt == nil {
		return nil, oops.Code(CodeTokenMalformed).Errorf("token has no issue time")
	}

	return &Claims{
		UserID:    id,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}
