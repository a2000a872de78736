// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package auth provides authentication, session issuance and authorization
// for Natours.
//
// # Domain Types
//
// A User is created with NewUser, which validates the name, email and role.
// Password changes go through User.SetPassword so the change watermark moves
// with the hash, and reset tokens through SetResetToken / ClearResetToken so
// the hash and expiry are always set together.
//
// # Sessions
//
// Sessions are stateless HS256 tokens produced by a TokenIssuer. A token is
// accepted only while its user is active and the user's password has not
// changed at or after the token's issue time. Service.Authenticate performs
// that resolution and returns a Principal, which is the only way handlers
// learn who is calling.
//
// # Services
//
// Service coordinates signup, login, the password reset flow, password
// updates and self-service profile changes. It is created with NewService,
// which validates its dependencies.
package auth
