// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/authtest"
	"github.com/natours/natours/pkg/errutil"
)

func newTokens(t *testing.T, clock *authtest.Clock) *auth.TokenIssuer {
	t.Helper()
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: authtest.Secret,
		TTL:    time.Hour,
		Clock:  clock.Now,
	})
	require.NoError(t, err)
	return tokens
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	_, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: []byte("short"), TTL: time.Hour})
	errutil.AssertErrorCode(t, err, "TOKEN_SECRET_TOO_SHORT")

	_, err = auth.NewTokenIssuer(auth.TokenConfig{Secret: authtest.Secret})
	errutil.AssertErrorCode(t, err, "TOKEN_INVALID_TTL")
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	clock := authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC))
	tokens := newTokens(t, clock)
	id := ulid.Make()

	raw, expiresAt, err := tokens.Issue(id, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), expiresAt.UTC())

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.True(t, claims.IssuedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.True(t, claims.ExpiresAt.Equal(expiresAt))
}

func TestTokenIssuer_Expired(t *testing.T) {
	clock := authtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens := newTokens(t, clock)

	raw, _, err := tokens.Issue(ulid.Make(), clock.Now())
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)
	_, err = tokens.Verify(raw)
	errutil.AssertErrorCode(t, err, auth.CodeTokenExpired)
}

func TestTokenIssuer_Malformed(t *testing.T) {
	clock := authtest.NewClock(time.Now())
	tokens := newTokens(t, clock)

	raw, _, err := tokens.Issue(ulid.Make(), clock.Now())
	require.NoError(t, err)

	other, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret: []byte(strings.Repeat("x", 40)),
		TTL:    time.Hour,
		Clock:  clock.Now,
	})
	require.NoError(t, err)
	foreign, _, err := other.Issue(ulid.Make(), clock.Now())
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(clock.Now()),
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(clock.Now()),
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	})
	wrongAlg, err := hs512.SignedString(authtest.Secret)
	require.NoError(t, err)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-ulid",
		IssuedAt:  jwt.NewNumericDate(clock.Now()),
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	})
	badSub, err := badSubject.SignedString(authtest.Secret)
	require.NoError(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  ulid.Make().String(),
		IssuedAt: jwt.NewNumericDate(clock.Now()),
	})
	noExp, err := noExpiry.SignedString(authtest.Secret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"tampered", raw[:len(raw)-2] + "xx"},
		{"foreign secret", foreign},
		{"alg none", unsigned},
		{"other algorithm", wrongAlg},
		{"subject not an id", badSub},
		{"no expiry", noExp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Verify(tt.token)
			errutil.AssertErrorCode(t, err, auth.CodeTokenMalformed)
		})
	}
}
