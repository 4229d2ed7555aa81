// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers account mail over SMTP, directly or through a Redis-backed queue.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/wneessen/go-mail"

	"github.com/holomush/accounts/internal/auth"
)

// TLS policies accepted in SMTPConfig.TLSPolicy.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	TLSPolicy string
	// Timeout bounds one delivery attempt, dial included.
	Timeout time.Duration
	// Retries is the number of extra attempts after a failed delivery.
	Retries   uint64
	RetryBase time.Duration
}

// DefaultSMTPConfig returns the defaults for a local relay.
func DefaultSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host:      "localhost",
		Port:      587,
		From:      "no-reply@localhost",
		TLSPolicy: TLSOpportunistic,
		Timeout:   10 * time.Second,
		Retries:   2,
		RetryBase: 250 * time.Millisecond,
	}
}

// Validate checks the fields a client cannot be built without.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return oops.Code("SMTP_CONFIG_INVALID").With("port", c.Port).Errorf("smtp port out of range")
	}
	if c.From == "" {
		return oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp from address is required")
	}
	if _, err := tlsPolicy(c.TLSPolicy); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return oops.Code("SMTP_CONFIG_INVALID").With("timeout", c.Timeout).Errorf("smtp timeout must be positive")
	}
	return nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case TLSMandatory:
		return mail.TLSMandatory, nil
	case TLSOpportunistic, "":
		return mail.TLSOpportunistic, nil
	case TLSNone:
		return mail.NoTLS, nil
	default:
		return 0, oops.Code("SMTP_CONFIG_INVALID").With("tls_policy", name).Errorf("unknown tls policy")
	}
}

// sender is the part of *mail.Client the notifier uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier implements auth.Notifier by sending HTML mail.
type SMTPNotifier struct {
	client  sender
	from    string
	timeout time.Duration
	backoff func() retry.Backoff
	logger  *slog.Logger
}

// NewSMTPNotifier builds a notifier with its own go-mail client.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := tlsPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("SMTP_CLIENT_FAILED").With("host", cfg.Host).Wrap(err)
	}
	return newSMTPNotifier(client, cfg, logger), nil
}

func newSMTPNotifier(client sender, cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = DefaultSMTPConfig().RetryBase
	}
	retries := cfg.Retries
	return &SMTPNotifier{
		client:  client,
		from:    cfg.From,
		timeout: cfg.Timeout,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(retries, retry.NewExponential(base))
		},
		logger: logger,
	}
}

// Send delivers msg, retrying transient failures. Each attempt is bounded by the
// configured timeout.
func (n *SMTPNotifier) Send(ctx context.Context, msg auth.Message) error {
	m, err := n.build(msg)
	if err != nil {
		return err
	}

	attempt := 0
	err = retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		if err := n.client.DialAndSendWithContext(sendCtx, m); err != nil {
			if permanent(err) {
				return err
			}
			n.logger.WarnContext(ctx, "smtp delivery attempt failed",
				"attempt", attempt,
				"subject", msg.Subject,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("SMTP_SEND_FAILED").
			With("subject", msg.Subject).
			With("attempts", attempt).
			Wrap(err)
	}
	n.logger.DebugContext(ctx, "mail delivered", "subject", msg.Subject, "attempts", attempt)
	return nil
}

func (n *SMTPNotifier) build(msg auth.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, oops.Code("MAIL_INVALID_SENDER").With("from", n.from).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("MAIL_INVALID_RECIPIENT").Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, context.Canceled)
}

var _ auth.Notifier = (*SMTPNotifier)(nil)
