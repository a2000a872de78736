// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"crypto/rand"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/auth/postgres"
	"github.com/natours/natours/internal/mail"
)

// NewUserCmd creates the user administration command.
func NewUserCmd() *cobra.Command {
	return newUserCmdWithDeps(nil)
}

func newUserCmdWithDeps(deps *UserDeps) *cobra.Command {
	if deps == nil {
		deps = &UserDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = connectPool
	}

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}

	setRole := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of an existing user",
		Long: `Change the role of the user registered under --email. This is the
only way to create the first admin account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetRole(cmd, deps)
		},
	}
	setRole.Flags().String("email", "", "email address of the user")
	setRole.Flags().String("role", "", "new role: user, guide, lead-guide or admin")
	_ = setRole.MarkFlagRequired("email") //nolint:errcheck // flag defined above
	_ = setRole.MarkFlagRequired("role")  //nolint:errcheck // flag defined above
	cmd.AddCommand(setRole)

	return cmd
}

func runSetRole(cmd *cobra.Command, deps *UserDeps) error {
	email, _ := cmd.Flags().GetString("email")
	roleName, _ := cmd.Flags().GetString("role")
	role, err := auth.ParseRole(roleName)
	if err != nil {
		return err //nolint:wrapcheck // coded by auth
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)
	ctx := cmd.Context()

	pool, err := deps.PoolFactory(ctx, cfg.Database, logger)
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	svc, err := newAdminService(pool, cfg.Auth.Hash, logger)
	if err != nil {
		return err
	}
	user, err := svc.SetRole(ctx, email, role)
	if err != nil {
		return oops.With("operation", "set role").Wrap(err)
	}

	cmd.Printf("%s <%s> is now %s\n", user.Name, user.Email, user.Role)
	return nil
}

// newAdminService builds a service for offline account changes. It never
// signs sessions or sends mail, so it gets a throwaway secret and a log mailer.
func newAdminService(pool Pool, params auth.HashParams, logger *slog.Logger) (*auth.Service, error) {
	secret := make([]byte, auth.MinTokenSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, oops.Code("SECRET_GENERATE_FAILED").Wrap(err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: secret, TTL: auth.DefaultTokenTTL})
	if err != nil {
		return nil, oops.With("operation", "create token issuer").Wrap(err)
	}
	hasher, err := auth.NewArgon2idHasher(params)
	if err != nil {
		return nil, oops.With("operation", "create password hasher").Wrap(err)
	}
	svc, err := auth.NewService(auth.ServiceConfig{
		Users:  postgres.NewUserRepository(pool),
		Hasher: hasher,
		Tokens: tokens,
		Mailer: mail.NewLogMailer(logger),
		Logger: logger,
	})
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return svc, nil
}
