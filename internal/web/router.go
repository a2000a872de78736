// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package web exposes the account API over HTTP.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/logging"
	"github.com/natours/natours/internal/ratelimit"
)

// RequestRecorder receives per-request measurements.
type RequestRecorder interface {
	RecordRequest(route string, status int, elapsed time.Duration)
	RecordRateLimited()
}

// Limiter decides whether a client may proceed. *ratelimit.Limiter
// implements it.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RouterConfig wires the API router.
type RouterConfig struct {
	Service  AuthService
	Sessions SessionWriter
	Logger   *slog.Logger

	// PublicURL is the base of emailed links. Empty means derive it from
	// the request.
	PublicURL      string
	CORSOrigins    []string
	RequestTimeout time.Duration
	Development    bool

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only safe behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// Optional.
	Limiter Limiter
	Metrics RequestRecorder
}

// NewRouter builds the HTTP handler for the API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errs := ErrorWriter{Logger: logger, Development: cfg.Development}
	mw := NewAuthMiddleware(cfg.Service, cfg.Sessions.CookieName, errs)
	h := &Handlers{
		svc:       cfg.Service,
		sessions:  cfg.Sessions,
		errors:    errs,
		publicURL: cfg.PublicURL,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger, cfg.Metrics))
	r.Use(recoverer(errs))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Route("/api", func(api chi.Router) {
		if cfg.Limiter != nil {
			api.Use(rateLimit(cfg.Limiter, cfg.Metrics, errs, logger))
		}

		api.With(mw.OptionalAuth).Get("/v1/session", h.session)

		api.Route("/v1/users", func(users chi.Router) {
			users.Post("/signup", h.signup)
			users.Post("/login", h.login)
			users.Get("/logout", h.logout)
			users.Post("/forgotPassword", h.forgotPassword)
			users.Patch("/resetPassword/{token}", h.resetPassword)

			users.Group(func(protected chi.Router) {
				protected.Use(mw.RequireAuth)
				protected.Method(http.MethodPatch, "/updateMyPassword", mw.Authenticated(h.updatePassword))
				protected.Method(http.MethodGet, "/me", mw.Authenticated(h.me))
				protected.Method(http.MethodPatch, "/updateMe", mw.Authenticated(h.updateMe))
				protected.Method(http.MethodDelete, "/deleteMe", mw.Authenticated(h.deleteMe))

				// Admin user management stops at lookup; list, update and delete are not served.
				adminOnly := mw.RequireRole(auth.RoleAdmin)
				protected.Method(http.MethodPost, "/", mw.Authenticated(adminOnly(h.createUser)))
				protected.Method(http.MethodGet, "/{id}", mw.Authenticated(adminOnly(h.getUser)))
			})
		})
	})

	return r
}

// requestLogger logs and measures every request under its route pattern.
func requestLogger(logger *slog.Logger, metrics RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			r = r.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			elapsed := time.Since(start)
			if metrics != nil {
				metrics.RecordRequest(route, status, elapsed)
			}
			logger.InfoContext(ctx, "request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
			)
		})
	}
}

// routePattern keeps metric labels bounded: raw paths carry tokens and ids.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// recoverer turns a handler panic into a logged 500.
func recoverer(errs ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				errs.WriteError(w, r, panicError(rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit applies the limiter per client IP. A limiter failure lets the
// request through.
func rateLimit(l Limiter, metrics RequestRecorder, errs ErrorWriter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				if metrics != nil {
					metrics.RecordRateLimited()
				}
				w.Header().Set("Retry-After", decision.RetryAfterSeconds())
				errs.WriteError(w, r, requestError(CodeRateLimited, "too many requests from this IP, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. RemoteAddr only reflects
// forwarding headers when TrustProxyHeaders enabled RealIP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
