// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package web

import (
	"context"
	"net/http"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/logging"
)

// Authenticator resolves a raw session token. *auth.Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// AuthenticatedHandler serves a request whose caller has been authenticated.
// RequireRole only composes with this type, so a role check cannot be
// mounted without authentication in front of it.
type AuthenticatedHandler func(w http.ResponseWriter, r *http.Request, p auth.Principal)

// AuthMiddleware guards routes with session tokens.
type AuthMiddleware struct {
	auth       Authenticator
	cookieName string
	errors     ErrorWriter
}

// NewAuthMiddleware creates the middleware set.
func NewAuthMiddleware(a Authenticator, cookieName string, errors ErrorWriter) *AuthMiddleware {
	return &AuthMiddleware{auth: a, cookieName: cookieName, errors: errors}
}

func (m *AuthMiddleware) resolve(r *http.Request) (auth.Principal, error) {
	return m.auth.Authenticate(r.Context(), TokenFromRequest(r, m.cookieName))
}

func withPrincipal(r *http.Request, p auth.Principal) *http.Request {
	ctx := auth.WithPrincipal(r.Context(), p)
	if u := p.User(); u != nil {
		ctx = logging.WithUserID(ctx, u.ID.String())
	}
	return r.WithContext(ctx)
}

// RequireAuth rejects the request unless it carries a valid, current session.
// A request already authenticated further up the chain passes through.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFrom(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.resolve(r)
		if err != nil {
			m.errors.WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, withPrincipal(r, p))
	})
}

// OptionalAuth attaches the principal when the session is valid and otherwise
// continues anonymously. It never rejects.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFrom(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		if TokenFromRequest(r, m.cookieName) == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.resolve(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withPrincipal(r, p))
	})
}

// Authenticated adapts h to http.Handler behind RequireAuth.
func (m *AuthMiddleware) Authenticated(h AuthenticatedHandler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		h(w, r, p)
	}))
}

// RequireRole returns a decorator admitting only principals holding one of
// roles.
func (m *AuthMiddleware) RequireRole(roles ...auth.Role) func(AuthenticatedHandler) AuthenticatedHandler {
	return func(next AuthenticatedHandler) AuthenticatedHandler {
		return func(w http.ResponseWriter, r *http.Request, p auth.Principal) {
			if err := p.Require(roles...); err != nil {
				m.errors.WriteError(w, r, err)
				return
			}
			next(w, r, p)
		}
	}
}
