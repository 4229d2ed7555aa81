// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Sentinel errors, one per failure kind. Repositories wrap ErrNotFound and
// ErrDuplicateAccount; the Service wraps the rest.
var (
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is not active")
	ErrMissingToken       = errors.New("token is required")
	ErrInvalidToken       = errors.New("token is invalid or expired")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorage            = errors.New("storage failure")
	ErrDelivery           = errors.New("delivery failure")
	ErrHashing            = errors.New("hashing failure")
	ErrTokenIssue         = errors.New("token issue failure")
)

// Kind classifies an operation failure. Its value doubles as the oops error code.
type Kind string

// Failure kinds.
const (
	KindNone               Kind = ""
	KindDuplicateAccount   Kind = "DUPLICATE_ACCOUNT"
	KindNotFound           Kind = "ACCOUNT_NOT_FOUND"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindInactiveAccount    Kind = "INACTIVE_ACCOUNT"
	KindMissingToken       Kind = "MISSING_TOKEN"
	KindInvalidToken       Kind = "INVALID_TOKEN"
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindStorage            Kind = "STORAGE_FAILURE"
	KindDelivery           Kind = "DELIVERY_FAILURE"
	KindHashing            Kind = "HASHING_FAILURE"
	KindTokenIssue         Kind = "TOKEN_ISSUE_FAILURE"
)

// kinds is ordered: the first sentinel found in an error chain wins.
var kinds = []struct {
	kind     Kind
	sentinel error
}{
	{KindInvalidInput, ErrInvalidInput},
	{KindMissingToken, ErrMissingToken},
	{KindInvalidToken, ErrInvalidToken},
	{KindDuplicateAccount, ErrDuplicateAccount},
	{KindInvalidCredentials, ErrInvalidCredentials},
	{KindInactiveAccount, ErrInactiveAccount},
	{KindDelivery, ErrDelivery},
	{KindHashing, ErrHashing},
	{KindTokenIssue, ErrTokenIssue},
	{KindStorage, ErrStorage},
	{KindNotFound, ErrNotFound},
}

// KindOf classifies err. Errors that match no sentinel are reported as KindStorage,
// the catch-all for unexpected failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindStorage
}

// Internal reports whether the kind is an unexpected failure whose detail must not
// reach the caller.
func (k Kind) Internal() bool {
	switch k {
	case KindStorage, KindHashing, KindTokenIssue:
		return true
	default:
		return false
	}
}

// fail builds an operation error of the given kind. The cause, when present, stays
// in the chain for logging.
func fail(kind Kind, sentinel error, op string, cause error) error {
	builder := oops.Code(string(kind)).With("operation", op)
	if cause == nil {
		return builder.Wrap(sentinel)
	}
	return builder.Wrap(fmt.Errorf("%w: %w", sentinel, cause))
}
