// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package authtest provides in-memory fakes for exercising the auth service.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/natours/natours/internal/auth"
)

// HashParams is a cheap argon2id work factor for tests.
func HashParams() auth.HashParams {
	return auth.HashParams{Time: 1, MemoryKiB: 1024, Threads: 1, Concurrency: 4}
}

// Secret is a valid HS256 signing secret for tests.
var Secret = []byte("test-secret-test-secret-test-secret-0123")

// Users is an in-memory auth.UserRepository. Stored users are copied on the
// way in and out so callers cannot mutate the store behind its back.
type Users struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.User

	// SaveErr, when set, is returned by every Save.
	SaveErr error
	// Saves counts Save calls.
	Saves int
}

// NewUsers returns an empty store.
func NewUsers() *Users {
	return &Users{users: make(map[ulid.ULID]*auth.User)}
}

// Create implements auth.UserRepository.
func (r *Users) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	r.users[user.ID] = clone(user)
	return nil
}

// FindByID implements auth.UserRepository.
func (r *Users) FindByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.Active {
		return nil, auth.ErrNotFound
	}
	return clone(u), nil
}

// FindByEmail implements auth.UserRepository.
func (r *Users) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	return r.find(func(u *auth.User) bool { return u.Email == email })
}

// FindByResetTokenHash implements auth.UserRepository.
func (r *Users) FindByResetTokenHash(_ context.Context, hash string) (*auth.User, error) {
	return r.find(func(u *auth.User) bool { return u.ResetTokenHash != nil && *u.ResetTokenHash == hash })
}

// Save implements auth.UserRepository.
func (r *Users) Save(_ context.Context, user *auth.User, opts auth.SaveOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Saves++
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if _, ok := r.users[user.ID]; !ok {
		return auth.ErrNotFound
	}
	if !opts.SkipValidation {
		if err := user.Validate(); err != nil {
			return err
		}
	}
	for id, u := range r.users {
		if id != user.ID && u.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	r.users[user.ID] = clone(user)
	return nil
}

// Get returns the stored record regardless of Active.
func (r *Users) Get(id ulid.ULID) *auth.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	return clone(u)
}

// Put stores user as-is, bypassing validation.
func (r *Users) Put(user *auth.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = clone(user)
}

func (r *Users) find(match func(*auth.User) bool) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Active && match(u) {
			return clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func clone(u *auth.User) *auth.User {
	c := *u
	c.PasswordChangedAt = clonePtr(u.PasswordChangedAt)
	c.ResetTokenHash = clonePtr(u.ResetTokenHash)
	c.ResetTokenExpiresAt = clonePtr(u.ResetTokenExpiresAt)
	c.LockedUntil = clonePtr(u.LockedUntil)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Mailer is a testify mock implementing auth.Mailer.
type Mailer struct {
	mock.Mock
}

// SendWelcome implements auth.Mailer.
func (m *Mailer) SendWelcome(ctx context.Context, user *auth.User, url string) error {
	args := m.Called(ctx, user, url)
	return args.Error(0)
}

// SendPasswordReset implements auth.Mailer.
func (m *Mailer) SendPasswordReset(ctx context.Context, user *auth.User, url string) error {
	args := m.Called(ctx, user, url)
	return args.Error(0)
}

// NewMailer returns a Mailer whose expectations are asserted at cleanup.
func NewMailer(t interface {
	mock.TestingT
	Cleanup(func())
},
) *Mailer {
	m := &Mailer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Events records auth events.
type Events struct {
	mu     sync.Mutex
	counts map[string]int
}

// RecordAuthEvent implements auth.EventRecorder.
func (e *Events) RecordAuthEvent(event, result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.counts == nil {
		e.counts = make(map[string]int)
	}
	e.counts[event+"/"+result]++
}

// Count returns how often event finished with result.
func (e *Events) Count(event, result string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[event+"/"+result]
}
