// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/natours/natours/pkg/errutil"
)

// Mailer delivers account emails. Implementations must be safe for
// concurrent use.
type Mailer interface {
	// SendWelcome greets a new user. url points at their profile page.
	SendWelcome(ctx context.Context, user *User, url string) error

	// SendPasswordReset delivers the reset link.
	SendPasswordReset(ctx context.Context, user *User, url string) error
}

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, result string)
}

// Event names passed to EventRecorder.
const (
	EventSignup         = "signup"
	EventLogin          = "login"
	EventForgotPassword = "forgot_password"
	EventResetPassword  = "reset_password"
	EventUpdatePassword = "update_password"
	EventAuthenticate   = "authenticate"
	EventWelcomeEmail   = "welcome_email"
)

// Event results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// ResetPath is the route prefix embedded in reset links.
const ResetPath = "/api/v1/users/resetPassword/"

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	Users  UserRepository
	Hasher PasswordHasher
	Tokens *TokenIssuer
	Mailer Mailer

	// ResetTokenTTL defaults to DefaultResetTokenTTL.
	ResetTokenTTL time.Duration

	// Optional.
	Events EventRecorder
	Logger *slog.Logger
	Clock  func() time.Time
}

// Service implements the account and session operations.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   *TokenIssuer
	mailer   Mailer
	resetTTL time.Duration
	events   EventRecorder
	logger   *slog.Logger
	now      func() time.Time

	// dummyHash is verified against when the email is unknown so the
	// response time does not reveal whether an account exists.
	dummyHash string
}

// Session is the result of a session-issuing operation.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

// NewService validates cfg and creates a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if cfg.Hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token issuer is required")
	}
	if cfg.Mailer == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("mailer is required")
	}
	if cfg.ResetTokenTTL < 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("reset token TTL cannot be negative")
	}

	s := &Service{
		users:    cfg.Users,
		hasher:   cfg.Hasher,
		tokens:   cfg.Tokens,
		mailer:   cfg.Mailer,
		resetTTL: cfg.ResetTokenTTL,
		events:   cfg.Events,
		logger:   cfg.Logger,
		now:      cfg.Clock,
	}
	if s.resetTTL == 0 {
		s.resetTTL = DefaultResetTokenTTL
	}
	if s.events == nil {
		s.events = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Wrap(err)
	}
	dummy, err := s.hasher.Hash(context.Background(), hex.EncodeToString(seed))
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").With("operation", "hash dummy password").Wrap(err)
	}
	s.dummyHash = dummy

	return s, nil
}

// SignupInput is the client-supplied part of a signup. Any role the client
// sends is not represented here; new accounts always get RoleUser.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string

	// BaseURL is the scheme and host the welcome link is built from.
	BaseURL string
}

// Signup creates an account and issues its first session.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidInput("please tell us your name")
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(name, email, hash, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.events.RecordAuthEvent(EventSignup, ResultFailure)
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code(CodeEmailTaken).
				With("email", email).
				Errorf("an account with that email already exists")
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "create user").Wrap(err)
	}
	s.events.RecordAuthEvent(EventSignup, ResultSuccess)
	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID.String())

	if err := s.mailer.SendWelcome(ctx, user, joinURL(in.BaseURL, "/me")); err != nil {
		s.events.RecordAuthEvent(EventWelcomeEmail, ResultFailure)
		errutil.LogError(ctx, s.logger, "welcome email failed", err)
	} else {
		s.events.RecordAuthEvent(EventWelcomeEmail, ResultSuccess)
	}

	return s.issue(user)
}

// Login verifies credentials and issues a session.
// Unknown emails and wrong passwords fail identically and in similar time.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		s.events.RecordAuthEvent(EventLogin, ResultFailure)
		return nil, oops.Code(CodeMissingCredentials).Errorf("please provide email and password")
	}

	user, lookupErr := s.users.FindByEmail(ctx, email)
	target := s.dummyHash
	exists := false
	switch {
	case lookupErr == nil:
		target = user.PasswordHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "find user by email").Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(ctx, password, target)
	if verifyErr != nil && exists {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	now := s.now()
	// Verified first so a locked account costs the same as any other. The
	// answer must not depend on the password while the lock holds.
	if exists && user.IsLocked(now) {
		s.events.RecordAuthEvent(EventLogin, ResultFailure)
		return nil, oops.Code(CodeAccountLocked).
			With("user_id", user.ID.String()).
			With("retry_after", user.LockoutRemaining(now).Round(time.Second).String()).
			Errorf("account is temporarily locked, please try again later")
	}
	if !exists || !valid {
		s.events.RecordAuthEvent(EventLogin, ResultFailure)
		if exists {
			if user.RecordLoginFailure(now) {
				s.logger.WarnContext(ctx, "account locked after repeated login failures",
					"user_id", user.ID.String(), "locked_until", user.LockedUntil)
			}
			s.saveBestEffort(ctx, user, "record login failure")
		}
		return nil, invalidCredentials()
	}

	dirty := user.hasLoginFailures()
	user.RecordLoginSuccess()

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		upgraded, err := s.hasher.Hash(ctx, password)
		if err != nil {
			errutil.LogError(ctx, s.logger, "password hash upgrade failed", err)
		} else {
			// Same password, so the change watermark stays put.
			user.PasswordHash = upgraded
			dirty = true
		}
	}
	if dirty {
		s.saveBestEffort(ctx, user, "record login success")
	}

	s.events.RecordAuthEvent(EventLogin, ResultSuccess)
	return s.issue(user)
}

// ForgotPassword starts the reset flow for email. The plaintext token only
// leaves the process inside the link handed to the Mailer.
func (s *Service) ForgotPassword(ctx context.Context, email, baseURL string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return invalidInput("please provide your email address")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.events.RecordAuthEvent(EventForgotPassword, ResultFailure)
			return oops.Code(CodeUserNotFound).Errorf("there is no user with that email address")
		}
		return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").With("operation", "find user by email").Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").With("operation", "generate reset token").Wrap(err)
	}
	user.SetResetToken(hash, s.now().Add(s.resetTTL))
	if err := s.users.Save(ctx, user, SaveOptions{SkipValidation: true}); err != nil {
		return oops.Code("AUTH_FORGOT_PASSWORD_FAILED").
			With("operation", "store reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user, joinURL(baseURL, ResetPath+token)); err != nil {
		errutil.LogError(ctx, s.logger, "password reset email failed", err)
		user.ClearResetToken()
		s.saveBestEffort(ctx, user, "roll back reset token")
		s.events.RecordAuthEvent(EventForgotPassword, ResultFailure)
		return oops.Code(CodeDeliveryFailed).
			With("user_id", user.ID.String()).
			Errorf("there was an error sending the email, try again later")
	}

	s.events.RecordAuthEvent(EventForgotPassword, ResultSuccess)
	return nil
}

// ResetPassword consumes a reset token, sets the new password and issues a
// session. Every token problem yields the same InvalidResetToken error.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) (*Session, error) {
	if token == "" {
		return nil, invalidResetToken()
	}

	user, err := s.users.FindByResetTokenHash(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.events.RecordAuthEvent(EventResetPassword, ResultFailure)
			return nil, invalidResetToken()
		}
		return nil, oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "find user by reset token").Wrap(err)
	}

	now := s.now()
	if !user.ResetTokenUsable(token, now) {
		s.events.RecordAuthEvent(EventResetPassword, ResultFailure)
		return nil, invalidResetToken()
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	user.SetPassword(hash, now)
	user.ClearResetToken()
	user.RecordLoginSuccess()
	if err := s.users.Save(ctx, user, SaveOptions{}); err != nil {
		return nil, oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "save user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.events.RecordAuthEvent(EventResetPassword, ResultSuccess)
	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID.String())
	return s.issue(user)
}

// UpdatePassword changes the caller's password after re-checking the current
// one. Every session issued before the change stops working.
func (s *Service) UpdatePassword(ctx context.Context, p Principal, current, password, confirm string) (*Session, error) {
	user, err := s.reload(ctx, p)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(ctx, current, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_UPDATE_PASSWORD_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !ok {
		s.events.RecordAuthEvent(EventUpdatePassword, ResultFailure)
		return nil, oops.Code(CodeInvalidCredentials).Errorf("your current password is wrong")
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, oops.Code("AUTH_UPDATE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	user.SetPassword(hash, s.now())
	if err := s.users.Save(ctx, user, SaveOptions{}); err != nil {
		return nil, oops.Code("AUTH_UPDATE_PASSWORD_FAILED").
			With("operation", "save user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.events.RecordAuthEvent(EventUpdatePassword, ResultSuccess)
	return s.issue(user)
}

// Authenticate resolves a raw session token to a Principal.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, unauthenticated(ReasonMissing)
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		reason := ReasonMalformed
		if errutil.Code(err) == CodeTokenExpired {
			reason = ReasonExpired
		}
		s.events.RecordAuthEvent(EventAuthenticate, ResultFailure)
		s.logger.DebugContext(ctx, "session token rejected", errutil.Attrs(err)...)
		return Principal{}, unauthenticated(reason)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.events.RecordAuthEvent(EventAuthenticate, ResultFailure)
			return Principal{}, oops.Code(CodeAccountGone).
				With("user_id", claims.UserID.String()).
				Errorf("the user belonging to this token no longer exists")
		}
		return Principal{}, oops.Code("AUTH_AUTHENTICATE_FAILED").
			With("operation", "find user by id").
			With("user_id", claims.UserID.String()).
			Wrap(err)
	}

	if user.PasswordChangedSince(claims.IssuedAt) {
		s.events.RecordAuthEvent(EventAuthenticate, ResultFailure)
		return Principal{}, oops.Code(CodeStaleSession).
			With("user_id", user.ID.String()).
			Errorf("user recently changed password, please log in again")
	}

	s.events.RecordAuthEvent(EventAuthenticate, ResultSuccess)
	return Principal{user: user, issuedAt: claims.IssuedAt}, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, p Principal) (*User, error) {
	return s.reload(ctx, p)
}

// UpdateMeInput carries profile changes. Nil fields are left alone. The
// password fields exist only so attempts to change the password here can be
// rejected.
type UpdateMeInput struct {
	Name            *string
	Email           *string
	Password        string
	PasswordConfirm string
}

// UpdateMe changes the caller's name or email.
func (s *Service) UpdateMe(ctx context.Context, p Principal, in UpdateMeInput) (*User, error) {
	if in.Password != "" || in.PasswordConfirm != "" {
		return nil, invalidInput("this route is not for password updates, please use /updateMyPassword")
	}

	user, err := s.reload(ctx, p)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalidInput("please tell us your name")
		}
		user.Name = name
	}
	if in.Email != nil {
		email, err := NormalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	user.UpdatedAt = s.now()

	if err := s.users.Save(ctx, user, SaveOptions{}); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code(CodeEmailTaken).
				With("email", user.Email).
				Errorf("an account with that email already exists")
		}
		return nil, oops.Code("AUTH_UPDATE_ME_FAILED").
			With("operation", "save user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return user, nil
}

// Deactivate hides the caller's account from every lookup. The row is kept.
func (s *Service) Deactivate(ctx context.Context, p Principal) error {
	user, err := s.reload(ctx, p)
	if err != nil {
		return err
	}
	user.Active = false
	user.UpdatedAt = s.now()
	if err := s.users.Save(ctx, user, SaveOptions{SkipValidation: true}); err != nil {
		return oops.Code("AUTH_DEACTIVATE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "user deactivated", "user_id", user.ID.String())
	return nil
}

// GetUser looks up an active user by ID for administrators.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).
				With("user_id", id.String()).
				Errorf("no user found with that ID")
		}
		return nil, oops.Code("AUTH_GET_USER_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

// SetRole assigns role to the user registered under email.
func (s *Service) SetRole(ctx context.Context, email string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, invalidInput("role is either user, guide, lead-guide, or admin")
	}
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).Errorf("there is no user with that email address")
		}
		return nil, oops.Code("AUTH_SET_ROLE_FAILED").With("operation", "find user by email").Wrap(err)
	}
	user.Role = role
	user.UpdatedAt = s.now()
	if err := s.users.Save(ctx, user, SaveOptions{SkipValidation: true}); err != nil {
		return nil, oops.Code("AUTH_SET_ROLE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	s.logger.InfoContext(ctx, "user role changed", "user_id", user.ID.String(), "role", string(role))
	return user, nil
}

// issue signs a session for user. The issue time never shares a second with
// the password-change watermark, so the new token survives the staleness
// check while every earlier one fails it.
func (s *Service) issue(user *User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.SessionIssueTime(s.now()))
	if err != nil {
		return nil, oops.Code("AUTH_ISSUE_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// reload fetches the current record for an authenticated principal.
func (s *Service) reload(ctx context.Context, p Principal) (*User, error) {
	if p.IsAnonymous() {
		return nil, unauthenticated(ReasonMissing)
	}
	user, err := s.users.FindByID(ctx, p.user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountGone).
				With("user_id", p.user.ID.String()).
				Errorf("the user belonging to this token no longer exists")
		}
		return nil, oops.Code("AUTH_LOAD_USER_FAILED").With("user_id", p.user.ID.String()).Wrap(err)
	}
	return user, nil
}

func (s *Service) saveBestEffort(ctx context.Context, user *User, operation string) {
	if err := s.users.Save(ctx, user, SaveOptions{SkipValidation: true}); err != nil {
		errutil.LogError(ctx, s.logger, "user update failed", oops.
			With("operation", operation).
			With("user_id", user.ID.String()).
			Wrap(err))
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
