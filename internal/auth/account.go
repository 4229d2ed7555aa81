// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRole is assigned to new accounts when the configuration names none.
const DefaultRole = "user"

// Validation limits for account fields.
const (
	MaxNameLength  = 100
	MaxEmailLength = 254
)

// Account is a registered identity.
type Account struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
	// ResetToken holds the pending reset token verbatim; empty means no reset in progress.
	ResetToken string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewAccount builds an inactive account with a fresh ID.
func NewAccount(name, email, passwordHash, role string) (*Account, error) {
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash is required")
	}
	if role == "" {
		role = DefaultRole
	}
	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Name:         strings.TrimSpace(name),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasPendingReset reports whether a reset token is outstanding.
func (a Account) HasPendingReset() bool {
	return a.ResetToken != ""
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare, syntactically valid address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email is required")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("ACCOUNT_INVALID_EMAIL").With("max", MaxEmailLength).Errorf("email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("ACCOUNT_INVALID_EMAIL").With("email", email).Errorf("email is not a valid address")
	}
	return nil
}

// ValidateName checks the display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return oops.Code("ACCOUNT_INVALID_NAME").Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return oops.Code("ACCOUNT_INVALID_NAME").With("max", MaxNameLength).Errorf("name is too long")
	}
	return nil
}

// AccountUpdate enumerates the fields an update may change. Nil fields are left alone.
type AccountUpdate struct {
	PasswordHash *string
	// ResetToken set to "" clears the pending reset.
	ResetToken *string
	Active     *bool
	// IfResetToken makes the update conditional: it applies only while the
	// stored reset token still equals this value, otherwise the account is
	// reported as not found.
	IfResetToken *string
}

// Validate rejects updates that would break account invariants.
func (u AccountUpdate) Validate() error {
	if u.PasswordHash == nil && u.ResetToken == nil && u.Active == nil {
		return oops.Code("ACCOUNT_UPDATE_EMPTY").Errorf("update changes no fields")
	}
	if u.PasswordHash != nil && *u.PasswordHash == "" {
		return oops.Code("ACCOUNT_UPDATE_INVALID").With("field", "password_hash").Errorf("password hash cannot be empty")
	}
	if u.Active != nil && !*u.Active {
		return oops.Code("ACCOUNT_UPDATE_INVALID").With("field", "active").Errorf("accounts cannot be deactivated")
	}
	if u.IfResetToken != nil && *u.IfResetToken == "" {
		return oops.Code("ACCOUNT_UPDATE_INVALID").With("field", "reset_token").Errorf("reset token condition cannot be empty")
	}
	return nil
}

// Apply copies the set fields onto a.
func (u AccountUpdate) Apply(a *Account) {
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.ResetToken != nil {
		a.ResetToken = *u.ResetToken
	}
	if u.Active != nil {
		a.Active = *u.Active
	}
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// GetByEmail retrieves an account by normalized email.
	// Returns an error wrapping ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByResetToken retrieves the account whose pending reset token equals token.
	// Returns an error wrapping ErrNotFound if none matches.
	GetByResetToken(ctx context.Context, token string) (*Account, error)

	// Create inserts a new account.
	// Returns an error wrapping ErrDuplicateAccount if the email is taken.
	Create(ctx context.Context, account *Account) error

	// Update applies a validated partial update and returns the stored result.
	// Returns an error wrapping ErrNotFound if the account does not exist or
	// the update's IfResetToken condition does not hold.
	Update(ctx context.Context, id ulid.ULID, update AccountUpdate) (*Account, error)
}
