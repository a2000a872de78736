// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"slices"
	"time"

	"github.com/samber/oops"
)

// Principal is an authenticated caller. The zero value is anonymous; a
// non-anonymous Principal is only produced by Service.Authenticate and the
// session-issuing operations.
type Principal struct {
	user     *User
	issuedAt time.Time
}

// User returns a copy of the authenticated user, or nil for an anonymous
// principal.
func (p Principal) User() *User {
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// IsAnonymous reports whether no user is attached.
func (p Principal) IsAnonymous() bool {
	return p.user == nil
}

// Role returns the user's role, or "" when anonymous.
func (p Principal) Role() Role {
	if p.user == nil {
		return ""
	}
	return p.user.Role
}

// IssuedAt returns the issue time of the session token that authenticated
// this principal.
func (p Principal) IssuedAt() time.Time {
	return p.issuedAt
}

// Require returns a Forbidden error unless the principal holds one of roles.
func (p Principal) Require(roles ...Role) error {
	if p.user == nil {
		return unauthenticated(ReasonMissing)
	}
	if slices.Contains(roles, p.user.Role) {
		return nil
	}
	return oops.Code(CodeForbidden).
		With("role", string(p.user.Role)).
		Errorf("you do not have permission to perform this action")
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx. The second value is
// false when ctx carries none or only an anonymous one.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.IsAnonymous() {
		return Principal{}, false
	}
	return p, true
}
