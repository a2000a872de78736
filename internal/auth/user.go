// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the authorization level of a user.
type Role string

// Known roles. RoleUser is the default for new accounts.
const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// DefaultPhoto is the avatar assigned to new accounts.
const DefaultPhoto = "default.jpg"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// maxPasswordLength bounds hashing cost for hostile inputs.
const maxPasswordLength = 256

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts s to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", invalidInput("role is either user, guide, lead-guide, or admin")
	}
	return r, nil
}

// User is an account in the credential store.
type User struct {
	ID    ulid.ULID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Photo string    `json:"photo"`
	Role  Role      `json:"role"`

	PasswordHash        string     `json:"-"`
	PasswordChangedAt   *time.Time `json:"-"`
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	Active              bool       `json:"-"`
	FailedAttempts      int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

// NewUser creates a validated, active User with the default role and photo.
func NewUser(name, email, passwordHash string, now time.Time) (*User, error) {
	u := &User{
		ID:           ulid.Make(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		Photo:        DefaultPhoto,
		Role:         RoleUser,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks the record-level invariants enforced on every
// non-administrative save.
func (u *User) Validate() error {
	if u.ID.Compare(ulid.ULID{}) == 0 {
		return oops.Code("USER_INVALID_ID").Errorf("user ID cannot be zero")
	}
	if u.Name == "" {
		return invalidInput("please tell us your name")
	}
	if _, err := NormalizeEmail(u.Email); err != nil {
		return err
	}
	if !u.Role.Valid() {
		return invalidInput("role is either user, guide, lead-guide, or admin")
	}
	if u.PasswordHash == "" {
		return oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if (u.ResetTokenHash == nil) != (u.ResetTokenExpiresAt == nil) {
		return oops.Code("USER_INVALID_RESET_STATE").
			With("id", u.ID.String()).
			Errorf("reset token hash and expiry must be set together")
	}
	return nil
}

// SetPassword replaces the password hash and advances the watermark to now.
func (u *User) SetPassword(hash string, now time.Time) {
	u.PasswordHash = hash
	u.PasswordChangedAt = &now
	u.UpdatedAt = now
}

// PasswordChangedSince reports whether the password changed at or after
// issuedAt. Session tokens carry whole-second issue times, so the watermark
// is compared at the same granularity.
func (u *User) PasswordChangedSince(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return !u.PasswordChangedAt.Truncate(time.Second).Before(issuedAt.Truncate(time.Second))
}

// SessionIssueTime returns the issue time for a new session token: now, or
// the first whole second after the watermark when now falls in the same
// second as the last password change.
func (u *User) SessionIssueTime(now time.Time) time.Time {
	if u.PasswordChangedAt == nil {
		return now
	}
	earliest := u.PasswordChangedAt.Truncate(time.Second).Add(time.Second)
	if now.Before(earliest) {
		return earliest
	}
	return now
}

// SetResetToken records an outstanding reset token hash and its expiry.
func (u *User) SetResetToken(hash string, expiresAt time.Time) {
	u.ResetTokenHash = &hash
	u.ResetTokenExpiresAt = &expiresAt
}

// ClearResetToken removes any outstanding reset token.
func (u *User) ClearResetToken() {
	u.ResetTokenHash = nil
	u.ResetTokenExpiresAt = nil
}

// ResetTokenUsable reports whether token matches the outstanding reset token
// and that token has not expired at now.
func (u *User) ResetTokenUsable(token string, now time.Time) bool {
	if u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
		return false
	}
	if !u.ResetTokenExpiresAt.After(now) {
		return false
	}
	return VerifyResetToken(token, *u.ResetTokenHash)
}

// NormalizeEmail trims and lower-cases email and checks that it is a bare
// address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalidInput("please tell us your email")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", invalidInput("please provide a valid email")
	}
	return email, nil
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirm string) error {
	if password == "" {
		return invalidInput("please provide a password")
	}
	if len(password) < MinPasswordLength {
		return invalidInput("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return invalidInput("password must be at most %d characters", maxPasswordLength)
	}
	if confirm != password {
		return invalidInput("passwords are not the same")
	}
	return nil
}

// SaveOptions controls how a UserRepository persists an update.
type SaveOptions struct {
	// SkipValidation persists without running User.Validate. Used for
	// administrative writes such as reset-token bookkeeping and deactivation.
	SkipValidation bool
}

// UserRepository is the credential store. Inactive users are invisible to
// every Find method.
type UserRepository interface {
	// Create stores a new user. Returns ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, user *User) error

	// FindByID retrieves an active user by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// FindByEmail retrieves an active user by normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByResetTokenHash retrieves the active user holding the reset token hash.
	// Expiry is not checked here.
	FindByResetTokenHash(ctx context.Context, hash string) (*User, error)

	// Save updates an existing user.
	Save(ctx context.Context, user *User, opts SaveOptions) error
}
