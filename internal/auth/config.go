// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Token lifetimes used when Config leaves them zero.
const (
	DefaultActivationTTL = 20 * time.Minute
	DefaultSessionTTL    = 48 * time.Hour
	DefaultResetTTL      = 20 * time.Minute
)

// Config is the Service configuration. It is built once by the process and
// injected; the Service never reads process state.
type Config struct {
	ActivationTTL time.Duration
	SessionTTL    time.Duration
	ResetTTL      time.Duration

	// ActivationURL and ResetURL are link prefixes; the token is appended as the
	// final path segment.
	ActivationURL string
	ResetURL      string

	DefaultRole string

	// AllowedEmailDomains restricts signup to matching domains, e.g. "example.com"
	// or "*.example.org". Empty allows any domain.
	AllowedEmailDomains []string
}

// DefaultConfig returns a Config with the standard lifetimes.
func DefaultConfig() Config {
	return Config{
		ActivationTTL: DefaultActivationTTL,
		SessionTTL:    DefaultSessionTTL,
		ResetTTL:      DefaultResetTTL,
		ActivationURL: "http://localhost:3001/auth/email-activate",
		ResetURL:      "http://localhost:3001/forgot-password",
		DefaultRole:   DefaultRole,
	}
}

// Validate checks the configuration and compiles the domain patterns.
func (c Config) Validate() error {
	if c.ActivationTTL <= 0 || c.SessionTTL <= 0 || c.ResetTTL <= 0 {
		return oops.Code("AUTH_CONFIG_INVALID").
			With("activation_ttl", c.ActivationTTL).
			With("session_ttl", c.SessionTTL).
			With("reset_ttl", c.ResetTTL).
			Errorf("token lifetimes must be positive")
	}
	if c.ActivationURL == "" || c.ResetURL == "" {
		return oops.Code("AUTH_CONFIG_INVALID").Errorf("activation and reset URLs are required")
	}
	_, err := compileDomains(c.AllowedEmailDomains)
	return err
}

func compileDomains(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(NormalizeEmail(p), '.')
		if err != nil {
			return nil, oops.Code("AUTH_CONFIG_INVALID").With("pattern", p).Wrap(err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
