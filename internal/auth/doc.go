// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the account credential lifecycle.
//
// # Domain Types
//
//   - Account: a registered identity with email, password hash, role, activation
//     flag, and an optional pending reset token.
//   - AccountUpdate: the explicit set of fields an update may change.
//   - Claims: identity fields carried in signed tokens.
//
// # Services
//
//   - Service: signup, signin, activation, forgot-password and reset-password.
//     Every operation returns a Response; failures are classified by Kind.
//
// # Collaborators
//
//   - PasswordHasher: argon2id hashing with legacy bcrypt verification.
//   - TokenCodec: HS256 JWT issue and verify, unaware of token purpose.
//   - AccountRepository: persistence, see the postgres subpackage.
//   - Notifier: mail delivery, see internal/notify.
package auth
