// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/natours/natours/internal/auth"
)

// DefaultCookieName carries the session token for browser clients.
const DefaultCookieName = "jwt"

// loggedOutValue replaces the token on logout. It never verifies.
const loggedOutValue = "loggedout"

// loggedOutTTL is how long the logout cookie lives.
const loggedOutTTL = 10 * time.Second

// SessionWriter delivers issued sessions as a cookie plus a JSON body.
type SessionWriter struct {
	CookieName string
	CookieTTL  time.Duration
	// Secure marks cookies HTTPS-only. Set in production.
	Secure bool
	Clock  func() time.Time
}

func (s SessionWriter) cookieName() string {
	if s.CookieName == "" {
		return DefaultCookieName
	}
	return s.CookieName
}

func (s SessionWriter) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

type userData struct {
	User *auth.User `json:"user"`
}

// Issue sets the session cookie and writes the token and user.
func (s SessionWriter) Issue(w http.ResponseWriter, status int, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    session.Token,
		Path:     "/",
		Expires:  s.now().Add(s.CookieTTL),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, envelope{
		Status: "success",
		Token:  session.Token,
		Data:   userData{User: session.User},
	})
}

// Clear overwrites the session cookie with a short-lived placeholder.
func (s SessionWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName(),
		Value:    loggedOutValue,
		Path:     "/",
		Expires:  s.now().Add(loggedOutTTL),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, envelope{Status: "success"})
}

// TokenFromRequest extracts the session token. A bearer Authorization header
// carrying a token wins over the cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && scheme == "Bearer" {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
