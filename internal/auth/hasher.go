// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way encoding of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify checks if the password matches the encoded hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on an undecodable hash.
	Verify(ctx context.Context, password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be re-encoded with the current algorithm.
	NeedsUpgrade(hash string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// It also verifies bcrypt hashes carried over from the legacy account store.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if err := ctx.Err(); err != nil {
		return "", oops.Code("AUTH_HASH_CANCELED").Wrap(err)
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, oops.Code("AUTH_HASH_CANCELED").Wrap(err)
	}
	if isBcrypt(encodedHash) {
		return verifyBcrypt(password, encodedHash)
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	keyLen := len(expectedHash)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computedHash := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., legacy bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, "$argon2id$")
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

func verifyBcrypt(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
	}
}

// BoundedHasher limits how many hash computations run at once.
// argon2id allocates argon2Memory per call, so an unbounded burst of
// signups could exhaust memory.
type BoundedHasher struct {
	inner PasswordHasher
	sem   *semaphore.Weighted
}

// NewBoundedHasher wraps inner so that at most limit Hash or Verify calls run concurrently.
func NewBoundedHasher(inner PasswordHasher, limit int64) (*BoundedHasher, error) {
	if inner == nil {
		return nil, oops.Errorf("inner hasher is required")
	}
	if limit < 1 {
		return nil, oops.With("limit", limit).Errorf("hash concurrency limit must be positive")
	}
	return &BoundedHasher{inner: inner, sem: semaphore.NewWeighted(limit)}, nil
}

// Hash waits for a free slot, then delegates.
func (b *BoundedHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", oops.Code("AUTH_HASH_CANCELED").Wrap(err)
	}
	defer b.sem.Release(1)
	return b.inner.Hash(ctx, password) //nolint:wrapcheck // passthrough
}

// Verify waits for a free slot, then delegates.
func (b *BoundedHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false, oops.Code("AUTH_HASH_CANCELED").Wrap(err)
	}
	defer b.sem.Release(1)
	return b.inner.Verify(ctx, password, hash) //nolint:wrapcheck // passthrough
}

// NeedsUpgrade delegates without taking a slot.
func (b *BoundedHasher) NeedsUpgrade(hash string) bool {
	return b.inner.NeedsUpgrade(hash)
}

var (
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*BoundedHasher)(nil)
)
