// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/natours/natours/pkg/errutil"
)

// ErrNotFound is returned by a UserRepository when no active user matches.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by a UserRepository when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// Operational error codes. Errors carrying one of these codes are expected,
// user-facing failures; everything else is an internal fault.
const (
	CodeMissingCredentials = "AUTH_MISSING_CREDENTIALS"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeStaleSession       = "AUTH_STALE_SESSION"
	CodeAccountGone        = "AUTH_ACCOUNT_GONE"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeInvalidResetToken  = "AUTH_INVALID_RESET_TOKEN"
	CodeDeliveryFailed     = "AUTH_DELIVERY_FAILED"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
)

// Token verification codes. They never reach clients directly; the service
// folds both into CodeUnauthenticated and keeps the distinction in logs.
const (
	CodeTokenMalformed = "TOKEN_MALFORMED"
	CodeTokenExpired   = "TOKEN_EXPIRED"
)

// Reasons recorded under the "reason" context key of CodeUnauthenticated errors.
const (
	ReasonMissing   = "missing"
	ReasonMalformed = "malformed"
	ReasonExpired   = "expired"
)

var operationalCodes = map[string]struct{}{
	CodeMissingCredentials: {},
	CodeInvalidCredentials: {},
	CodeUnauthenticated:    {},
	CodeStaleSession:       {},
	CodeAccountGone:        {},
	CodeForbidden:          {},
	CodeInvalidResetToken:  {},
	CodeDeliveryFailed:     {},
	CodeInvalidInput:       {},
	CodeEmailTaken:         {},
	CodeUserNotFound:       {},
	CodeAccountLocked:      {},
}

// IsOperational reports whether err is an expected failure whose message is
// safe to show to the caller.
func IsOperational(err error) bool {
	_, ok := operationalCodes[errutil.Code(err)]
	return ok
}

func invalidInput(format string, args ...any) error {
	return oops.Code(CodeInvalidInput).Errorf(format, args...)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("incorrect email or password")
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).
		With("reason", reason).
		Errorf("you are not logged in, please log in to get access")
}

func invalidResetToken() error {
	return oops.Code(CodeInvalidResetToken).Errorf("token is invalid or has expired")
}
