// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package mail delivers account emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"log/slog"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/natours/natours/internal/auth"
)

//go:embed templates/*
var templatesFS embed.FS

// Template names, also used as metric labels.
const (
	TemplateWelcome       = "welcome"
	TemplatePasswordReset = "password_reset"
)

var subjects = map[string]string{
	TemplateWelcome:       "Welcome to the Natours Family!",
	TemplatePasswordReset: "Your password reset token",
}

// Sender transmits composed messages. *gomail.Dialer implements it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Recorder counts delivery attempts.
type Recorder interface {
	RecordEmail(template string, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordEmail(string, error) {}

// Config configures an SMTPMailer.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// ResetValidity is quoted in the reset email.
	ResetValidity time.Duration
}

// SMTPMailer renders templates and sends them through a Sender.
type SMTPMailer struct {
	sender   Sender
	from     string
	validity time.Duration
	html     *htmltemplate.Template
	text     *texttemplate.Template
	logger   *slog.Logger
	recorder Recorder
}

// NewSMTPMailer creates a mailer dialing cfg.Host for every message.
func NewSMTPMailer(cfg Config, logger *slog.Logger, recorder Recorder) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host is required")
	}
	return NewMailer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, logger, recorder)
}

// NewMailer creates a mailer around an arbitrary Sender.
func NewMailer(sender Sender, cfg Config, logger *slog.Logger, recorder Recorder) (*SMTPMailer, error) {
	if cfg.From == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("from address is required")
	}
	html, err := htmltemplate.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_FAILED").Wrap(err)
	}
	text, err := texttemplate.ParseFS(templatesFS, "templates/*.txt")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_FAILED").Wrap(err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	validity := cfg.ResetValidity
	if validity <= 0 {
		validity = auth.DefaultResetTokenTTL
	}
	return &SMTPMailer{
		sender:   sender,
		from:     cfg.From,
		validity: validity,
		html:     html,
		text:     text,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// SendWelcome implements auth.Mailer.
func (m *SMTPMailer) SendWelcome(ctx context.Context, user *auth.User, url string) error {
	return m.send(ctx, TemplateWelcome, user, url)
}

// SendPasswordReset implements auth.Mailer.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, user *auth.User, url string) error {
	return m.send(ctx, TemplatePasswordReset, user, url)
}

type templateData struct {
	FirstName string
	URL       string
	Validity  string
}

func (m *SMTPMailer) send(ctx context.Context, name string, user *auth.User, url string) (err error) {
	defer func() { m.recorder.RecordEmail(name, err) }()

	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("template", name).Wrap(err)
	}

	data := templateData{
		FirstName: FirstName(user.Name),
		URL:       url,
		Validity:  formatValidity(m.validity),
	}

	var html, text bytes.Buffer
	if err := m.html.ExecuteTemplate(&html, name+".html", data); err != nil {
		return oops.Code("MAIL_TEMPLATE_FAILED").With("template", name).Wrap(err)
	}
	if err := m.text.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return oops.Code("MAIL_TEMPLATE_FAILED").With("template", name).Wrap(err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", user.Email, user.Name)
	msg.SetHeader("Subject", subjects[name])
	msg.SetBody("text/plain", text.String())
	msg.AddAlternative("text/html", html.String())

	if err := m.sender.DialAndSend(msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("template", name).Wrap(err)
	}

	m.logger.InfoContext(ctx, "email sent", "template", name, "user_id", user.ID.String())
	return nil
}

// FirstName returns the first word of a display name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func formatValidity(d time.Duration) string {
	if d%time.Minute != 0 {
		return d.String()
	}
	if mins := int(d / time.Minute); mins != 1 {
		return strconv.Itoa(mins) + " minutes"
	}
	return "1 minute"
}
