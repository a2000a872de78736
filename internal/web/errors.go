// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package web

import (
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/pkg/errutil"
)

// Request-level error codes. Like the auth codes they are operational.
const (
	CodeInvalidBody      = "REQUEST_INVALID_BODY"
	CodeInvalidParam     = "REQUEST_INVALID_PARAM"
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeNotImplemented   = "NOT_IMPLEMENTED"
	CodeRateLimited      = "RATE_LIMITED"
)

var statusByCode = map[string]int{
	auth.CodeMissingCredentials: http.StatusBadRequest,
	auth.CodeInvalidCredentials: http.StatusUnauthorized,
	auth.CodeUnauthenticated:    http.StatusUnauthorized,
	auth.CodeStaleSession:       http.StatusUnauthorized,
	auth.CodeAccountGone:        http.StatusUnauthorized,
	auth.CodeForbidden:          http.StatusForbidden,
	auth.CodeInvalidResetToken:  http.StatusBadRequest,
	auth.CodeDeliveryFailed:     http.StatusInternalServerError,
	auth.CodeInvalidInput:       http.StatusBadRequest,
	auth.CodeEmailTaken:         http.StatusConflict,
	auth.CodeUserNotFound:       http.StatusNotFound,
	auth.CodeAccountLocked:      http.StatusTooManyRequests,

	CodeInvalidBody:      http.StatusBadRequest,
	CodeInvalidParam:     http.StatusBadRequest,
	CodeRouteNotFound:    http.StatusNotFound,
	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeNotImplemented:   http.StatusNotImplemented,
	CodeRateLimited:      http.StatusTooManyRequests,
}

// genericMessage is all a client learns about an internal failure.
const genericMessage = "Something went wrong."

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StatusFor maps err to an HTTP status. Errors without an operational code
// are internal.
func StatusFor(err error) int {
	if status, ok := statusByCode[errutil.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorWriter renders errors at the HTTP boundary.
type ErrorWriter struct {
	Logger *slog.Logger
	// Development adds the error code to every response body.
	Development bool
}

// WriteError writes err as a JSON error response. Operational errors keep
// their message; anything else is logged and replaced by a generic one.
func (e ErrorWriter) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := errutil.Code(err)
	status, operational := statusByCode[code]

	body := errorBody{Status: "fail", Message: genericMessage}
	if operational {
		// Operational errors are built fresh, so Error() is exactly the
		// user-facing message.
		body.Message = err.Error()
		if status >= http.StatusInternalServerError {
			body.Status = "error"
			e.logger().WarnContext(r.Context(), "request failed", errutil.Attrs(err)...)
		}
	} else {
		status = http.StatusInternalServerError
		body.Status = "error"
		errutil.LogError(r.Context(), e.logger(), "internal error", err)
	}
	if e.Development {
		body.Code = code
	}

	writeJSON(w, status, body)
}

func (e ErrorWriter) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func requestError(code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return oops.Code("HTTP_PANIC").Wrap(err)
	}
	return oops.Code("HTTP_PANIC").Errorf("panic: %v", rec)
}
