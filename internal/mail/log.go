// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/natours/natours/internal/auth"
)

// LogMailer writes emails to the log instead of sending them. It is meant for
// local development, where reset links are read from the console.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer writing to logger.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendWelcome implements auth.Mailer.
func (m *LogMailer) SendWelcome(ctx context.Context, user *auth.User, url string) error {
	m.logger.InfoContext(ctx, "email (not sent)", "template", TemplateWelcome, "to", user.Email, "url", url)
	return nil
}

// SendPasswordReset implements auth.Mailer.
func (m *LogMailer) SendPasswordReset(ctx context.Context, user *auth.User, url string) error {
	m.logger.InfoContext(ctx, "email (not sent)", "template", TemplatePasswordReset, "to", user.Email, "url", url)
	return nil
}

var (
	_ auth.Mailer = (*LogMailer)(nil)
	_ auth.Mailer = (*SMTPMailer)(nil)
)
