// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/natours/natours/internal/auth"
)

// AuthService is the account API the handlers drive. *auth.Service
// implements it.
type AuthService interface {
	Authenticator
	Signup(ctx context.Context, in auth.SignupInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	ForgotPassword(ctx context.Context, email, baseURL string) error
	ResetPassword(ctx context.Context, token, password, confirm string) (*auth.Session, error)
	UpdatePassword(ctx context.Context, p auth.Principal, current, password, confirm string) (*auth.Session, error)
	Me(ctx context.Context, p auth.Principal) (*auth.User, error)
	UpdateMe(ctx context.Context, p auth.Principal, in auth.UpdateMeInput) (*auth.User, error)
	Deactivate(ctx context.Context, p auth.Principal) error
	GetUser(ctx context.Context, id ulid.ULID) (*auth.User, error)
}

// Handlers serves the /api/v1/users routes.
type Handlers struct {
	svc      AuthService
	sessions SessionWriter
	errors   ErrorWriter
	// publicURL overrides the request host in emailed links.
	publicURL string
}

func (h *Handlers) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (h *Handlers) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	session, err := h.svc.Signup(r.Context(), auth.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		BaseURL:         h.baseURL(r),
	})
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.sessions.Issue(w, http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.sessions.Issue(w, http.StatusOK, session)
}

func (h *Handlers) logout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.Clear(w)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email, h.baseURL(r)); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: "success", Message: "Token sent to email!"})
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (h *Handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	session, err := h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password, req.PasswordConfirm)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.sessions.Issue(w, http.StatusOK, session)
}

type updatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

func (h *Handlers) updatePassword(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	session, err := h.svc.UpdatePassword(r.Context(), p, req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.sessions.Issue(w, http.StatusOK, session)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	user, err := h.svc.Me(r.Context(), p)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(userData{User: user}))
}

type updateMeRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"passwordConfirm"`
}

func (h *Handlers) updateMe(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req updateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	user, err := h.svc.UpdateMe(r.Context(), p, auth.UpdateMeInput(req))
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(userData{User: user}))
}

func (h *Handlers) deleteMe(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if err := h.svc.Deactivate(r.Context(), p); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	raw := chi.URLParam(r, "id")
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		h.errors.WriteError(w, r, requestError(CodeInvalidParam, "invalid id: %s", raw))
		return
	}
	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(userData{User: user}))
}

func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	h.errors.WriteError(w, r, requestError(CodeNotImplemented, "this route is not defined, please use /signup instead"))
}

type sessionData struct {
	LoggedIn bool       `json:"loggedIn"`
	User     *auth.User `json:"user,omitempty"`
}

// session reports who, if anyone, the request is authenticated as.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	writeJSON(w, http.StatusOK, success(sessionData{LoggedIn: ok, User: p.User()}))
}

func (h *Handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.errors.WriteError(w, r, requestError(CodeRouteNotFound, "can't find %s on this server", r.URL.Path))
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.errors.WriteError(w, r, requestError(CodeMethodNotAllowed, "method %s not allowed on %s", r.Method, r.URL.Path))
}
