// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/authtest"
	"github.com/natours/natours/internal/logging"
	"github.com/natours/natours/internal/web"
)

const publicURL = "https://natours.test"

// outbox is an auth.Mailer that keeps delivered links.
type outbox struct {
	mu      sync.Mutex
	welcome []string
	reset   []string
	fail    error
}

func (o *outbox) SendWelcome(_ context.Context, _ *auth.User, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.welcome = append(o.welcome, url)
	return nil
}

func (o *outbox) SendPasswordReset(_ context.Context, _ *auth.User, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.reset = append(o.reset, url)
	return nil
}

func (o *outbox) lastResetToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.reset)
	link := o.reset[len(o.reset)-1]
	require.True(t, strings.HasPrefix(link, publicURL+auth.ResetPath), "unexpected link %q", link)
	return strings.TrimPrefix(link, publicURL+auth.ResetPath)
}

type recordedRequest struct {
	route  string
	status int
}

type recorder struct {
	mu          sync.Mutex
	requests    []recordedRequest
	rateLimited int
}

func (r *recorder) RecordRequest(route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{route, status})
}

func (r *recorder) RecordRateLimited() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimited++
}

type env struct {
	handler http.Handler
	svc     *auth.Service
	users   *authtest.Users
	mail    *outbox
	clock   *authtest.Clock
	metrics *recorder
	logs    *bytes.Buffer
}

type envOption func(*web.RouterConfig)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	e := &env{
		users:   authtest.NewUsers(),
		mail:    &outbox{},
		clock:   authtest.NewClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)),
		metrics: &recorder{},
		logs:    &bytes.Buffer{},
	}
	hasher, err := auth.NewArgon2idHasher(authtest.HashParams())
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: authtest.Secret, TTL: time.Hour, Clock: e.clock.Now})
	require.NoError(t, err)
	logger := logging.Setup(logging.Options{Service: "natours-test", Writer: e.logs})
	e.svc, err = auth.NewService(auth.ServiceConfig{
		Users:  e.users,
		Hasher: hasher,
		Tokens: tokens,
		Mailer: e.mail,
		Logger: logger,
		Clock:  e.clock.Now,
	})
	require.NoError(t, err)

	cfg := web.RouterConfig{
		Service:   e.svc,
		Sessions:  web.SessionWriter{CookieTTL: 90 * 24 * time.Hour, Clock: e.clock.Now},
		Logger:    logger,
		PublicURL: publicURL,
		Metrics:   e.metrics,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	e.handler = web.NewRouter(cfg)
	return e
}

type response struct {
	*httptest.ResponseRecorder
	body map[string]any
}

func (r response) message() string {
	msg, _ := r.body["message"].(string)
	return msg
}

func (r response) token() string {
	tok, _ := r.body["token"].(string)
	return tok
}

func (r response) user() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	user, _ := data["user"].(map[string]any)
	return user
}

func (r response) cookie(name string) *http.Cookie {
	for _, c := range r.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type reqOption func(*http.Request)

func bearer(token string) reqOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func cookie(token string) reqOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "jwt", Value: token}) }
}

func (e *env) do(t *testing.T, method, path string, body any, opts ...reqOption) response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	resp := response{ResponseRecorder: rec}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp.body), "body: %s", rec.Body.String())
	}
	return resp
}

func (e *env) signup(t *testing.T, email, password string) response {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/users/signup", map[string]string{
		"name":            "Test User",
		"email":           email,
		"password":        password,
		"passwordConfirm": password,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return resp
}

func (e *env) admin(t *testing.T) string {
	t.Helper()
	e.signup(t, "admin@natours.test", "admin-pass-1")
	_, err := e.svc.SetRole(context.Background(), "admin@natours.test", auth.RoleAdmin)
	require.NoError(t, err)
	resp := e.do(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"email": "admin@natours.test", "password": "admin-pass-1",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	return resp.token()
}
