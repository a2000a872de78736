// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import "time"

// Login lockout configuration.
const (
	// LockoutThreshold is the number of consecutive failures that locks an account.
	LockoutThreshold = 7

	// LockoutDuration is how long a locked account rejects logins.
	LockoutDuration = 15 * time.Minute
)

// IsLocked reports whether the account rejects logins at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// LockoutRemaining returns how long the lockout lasts past now.
func (u *User) LockoutRemaining(now time.Time) time.Duration {
	if !u.IsLocked(now) {
		return 0
	}
	return u.LockedUntil.Sub(now)
}

// RecordLoginFailure counts a failed login and locks the account once the
// threshold is reached. Returns true when this failure triggered the lock.
func (u *User) RecordLoginFailure(now time.Time) bool {
	u.FailedAttempts++
	if u.FailedAttempts < LockoutThreshold {
		return false
	}
	until := now.Add(LockoutDuration)
	u.LockedUntil = &until
	u.FailedAttempts = 0
	return true
}

// RecordLoginSuccess clears failure tracking.
func (u *User) RecordLoginSuccess() {
	u.FailedAttempts = 0
	u.LockedUntil = nil
}

// hasLoginFailures reports whether RecordLoginSuccess would change anything.
func (u *User) hasLoginFailures() bool {
	return u.FailedAttempts != 0 || u.LockedUntil != nil
}
