// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/postgres"
)

func createUser(t *testing.T, repo *postgres.UserRepository, email string) *auth.User {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u, err := auth.NewUser("Integration", email, "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA", now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, u))
	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, u.ID.String())
	})
	return u
}

func TestUserRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	u := createUser(t, repo, "roundtrip@example.com")

	byID, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)
	assert.Equal(t, auth.RoleUser, byID.Role)
	assert.True(t, byID.CreatedAt.Equal(u.CreatedAt))

	byEmail, err := repo.FindByEmail(ctx, "roundtrip@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, ulid.Make())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := postgres.NewUserRepository(testPool)
	createUser(t, repo, "dup@example.com")

	now := time.Now().UTC()
	other, err := auth.NewUser("Other", "dup@example.com", "hash", now)
	require.NoError(t, err)
	err = repo.Create(context.Background(), other)
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestUserRepository_ResetTokenAndPassword(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	u := createUser(t, repo, "reset@example.com")

	_, hash, err := auth.GenerateResetToken()
	require.NoError(t, err)
	expires := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Microsecond)
	u.SetResetToken(hash, expires)
	require.NoError(t, repo.Save(ctx, u, auth.SaveOptions{SkipValidation: true}))

	found, err := repo.FindByResetTokenHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, found.ResetTokenExpiresAt)
	assert.True(t, expires.Equal(*found.ResetTokenExpiresAt))

	changed := time.Now().UTC().Truncate(time.Microsecond)
	found.SetPassword("new-hash", changed)
	found.ClearResetToken()
	require.NoError(t, repo.Save(ctx, found, auth.SaveOptions{}))

	_, err = repo.FindByResetTokenHash(ctx, hash)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	reloaded, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", reloaded.PasswordHash)
	require.NotNil(t, reloaded.PasswordChangedAt)
	assert.True(t, changed.Equal(*reloaded.PasswordChangedAt))
}

func TestUserRepository_InactiveIsInvisible(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)
	u := createUser(t, repo, "gone@example.com")

	u.Active = false
	require.NoError(t, repo.Save(ctx, u, auth.SaveOptions{SkipValidation: true}))

	_, err := repo.FindByID(ctx, u.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = repo.FindByEmail(ctx, u.Email)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	var count int
	require.NoError(t, testPool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, u.ID.String()).Scan(&count))
	assert.Equal(t, 1, count, "row is kept")
}
