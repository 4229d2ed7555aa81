// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/goleak"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

// fakeSender fails the first failures calls, then records messages.
type fakeSender struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	sent     []*mail.Msg
	deadline []bool
}

func (f *fakeSender) DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, hasDeadline := ctx.Deadline()
	f.deadline = append(f.deadline, hasDeadline)
	if f.calls <= f.failures {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSMTPConfig() SMTPConfig {
	cfg := DefaultSMTPConfig()
	cfg.From = "accounts@example.com"
	cfg.RetryBase = time.Millisecond
	return cfg
}

var activation = auth.Message{
	To:      "a@x.com",
	Subject: auth.SubjectActivation,
	HTML:    `<a href="http://localhost/activate/tok">activate</a>`,
}

func TestSMTPNotifier_Send(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeSender{}
	n := newSMTPNotifier(fake, testSMTPConfig(), quietLogger())

	require.NoError(t, n.Send(context.Background(), activation))
	require.Len(t, fake.sent, 1)

	msg := fake.sent[0]
	assert.Equal(t, []string{"<a@x.com>"}, msg.GetToString())
	assert.Equal(t, []string{auth.SubjectActivation}, msg.GetGenHeader(mail.HeaderSubject))
	assert.Equal(t, []bool{true}, fake.deadline, "every attempt runs under a timeout")
}

func TestSMTPNotifier_RetriesTransientFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	fake := &fakeSender{failures: 2, err: errors.New("421 service not available")}
	n := newSMTPNotifier(fake, testSMTPConfig(), quietLogger())

	require.NoError(t, n.Send(context.Background(), activation))
	assert.Equal(t, 3, fake.calls)
	assert.Len(t, fake.sent, 1)
}

func TestSMTPNotifier_GivesUp(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("connection refused")
	fake := &fakeSender{failures: 100, err: boom}
	cfg := testSMTPConfig()
	cfg.Retries = 1
	n := newSMTPNotifier(fake, cfg, quietLogger())

	err := n.Send(context.Background(), activation)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	errutil.AssertErrorCode(t, err, "SMTP_SEND_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", 2)
	assert.Equal(t, 2, fake.calls)
}

func TestSMTPNotifier_CanceledIsNotRetried(t *testing.T) {
	fake := &fakeSender{failures: 100, err: context.Canceled}
	n := newSMTPNotifier(fake, testSMTPConfig(), quietLogger())

	err := n.Send(context.Background(), activation)
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestSMTPNotifier_InvalidRecipient(t *testing.T) {
	fake := &fakeSender{}
	n := newSMTPNotifier(fake, testSMTPConfig(), quietLogger())

	err := n.Send(context.Background(), auth.Message{To: "not an address", Subject: "s", HTML: "h"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MAIL_INVALID_RECIPIENT")
	assert.Zero(t, fake.calls)
}

func TestNewSMTPNotifier(t *testing.T) {
	cfg := testSMTPConfig()
	cfg.Username = "mailer"
	cfg.Password = "secret"

	n, err := NewSMTPNotifier(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func TestSMTPConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SMTPConfig)
	}{
		{"missing host", func(c *SMTPConfig) { c.Host = "" }},
		{"port zero", func(c *SMTPConfig) { c.Port = 0 }},
		{"port too large", func(c *SMTPConfig) { c.Port = 70000 }},
		{"missing from", func(c *SMTPConfig) { c.From = "" }},
		{"unknown tls policy", func(c *SMTPConfig) { c.TLSPolicy = "sometimes" }},
		{"zero timeout", func(c *SMTPConfig) { c.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testSMTPConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "SMTP_CONFIG_INVALID")
		})
	}

	assert.NoError(t, testSMTPConfig().Validate())
}
