// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// MinSecretLength is the shortest signing secret the codec accepts.
const MinSecretLength = 32

// Token verification failures. The Service reports all of them as ErrInvalidToken.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenClaims    = errors.New("token claims invalid")
)

// Claims are the identity fields carried inside a token. Each purpose uses a subset.
type Claims struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// TokenCodec issues and verifies signed, expiring tokens. It knows nothing about
// what a token is for.
type TokenCodec interface {
	Issue(claims Claims, ttl time.Duration) (string, error)
	Verify(token string) (Claims, error)
}

type tokenClaims struct {
	AccountID string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTCodec implements TokenCodec with HS256 JSON Web Tokens.
type JWTCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTOption configures a JWTCodec.
type JWTOption func(*JWTCodec)

// WithIssuer sets the iss claim on issued tokens and requires it on verification.
func WithIssuer(issuer string) JWTOption {
	return func(c *JWTCodec) { c.issuer = issuer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) JWTOption {
	return func(c *JWTCodec) { c.now = now }
}

// NewJWTCodec creates a codec signing with secret.
func NewJWTCodec(secret []byte, opts ...JWTOption) (*JWTCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinSecretLength).
			Errorf("signing secret is too short")
	}
	c := &JWTCodec{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs claims with an expiry ttl from now.
func (c *JWTCodec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", oops.With("ttl", ttl).Errorf("token ttl must be positive")
	}
	now := c.now()
	tc := tokenClaims{
		AccountID: claims.ID,
		Name:      claims.Name,
		Email:     claims.Email,
		Role:      claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(c.secret)
	if err != nil {
		return "", oops.With("operation", "sign token").Wrap(err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, and expiry, and returns the embedded claims.
func (c *JWTCodec) Verify(token string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, classifyTokenError(err)
	}

	return Claims{
		ID:    tc.AccountID,
		Name:  tc.Name,
		Email: tc.Email,
		Role:  tc.Role,
	}, nil
}

func classifyTokenError(err error) error {
	var reason error
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		// Missing exp, wrong issuer, iat in the future.
		reason = ErrTokenClaims
	default:
		reason = ErrTokenSignature
	}
	return oops.With("reason", reason.Error()).Wrap(fmt.Errorf("%w: %w", reason, err))
}

var _ TokenCodec = (*JWTCodec)(nil)
