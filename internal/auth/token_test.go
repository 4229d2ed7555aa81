// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, opts ...auth.JWTOption) *auth.JWTCodec {
	t.Helper()
	codec, err := auth.NewJWTCodec(testSecret, opts...)
	require.NoError(t, err)
	return codec
}

func TestNewJWTCodec_RejectsShortSecret(t *testing.T) {
	codec, err := auth.NewJWTCodec([]byte("short"))
	require.Error(t, err)
	assert.Nil(t, codec)
	errutil.AssertErrorCode(t, err, "TOKEN_SECRET_INVALID")
}

func TestJWTCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, auth.WithIssuer("accounts"))

	tests := []struct {
		name   string
		claims auth.Claims
	}{
		{"activation claims", auth.Claims{ID: "01J0000000000000000000000A", Name: "Ana", Email: "a@x.com", Role: "user"}},
		{"session claims", auth.Claims{ID: "01J0000000000000000000000A", Email: "a@x.com", Role: "admin"}},
		{"reset claims", auth.Claims{ID: "01J0000000000000000000000A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := codec.Issue(tt.claims, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, 2, strings.Count(token, "."))

			got, err := codec.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, tt.claims, got)
		})
	}
}

func TestJWTCodec_IssueRejectsNonPositiveTTL(t *testing.T) {
	codec := newTestCodec(t)
	_, err := codec.Issue(auth.Claims{ID: "x"}, 0)
	assert.Error(t, err)
}

func TestJWTCodec_VerifyFailures(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := newTestCodec(t, auth.WithClock(func() time.Time { return issuedAt }))
	now := newTestCodec(t)

	expired, err := past.Issue(auth.Claims{ID: "a"}, time.Minute)
	require.NoError(t, err)

	otherSecret, err := auth.NewJWTCodec([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	foreign, err := otherSecret.Issue(auth.Claims{ID: "a"}, time.Minute)
	require.NoError(t, err)

	valid, err := now.Issue(auth.Claims{ID: "a", Email: "a@x.com"}, time.Minute)
	require.NoError(t, err)
	forged, err := otherSecret.Issue(auth.Claims{ID: "b", Email: "a@x.com"}, time.Minute)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	forgedParts := strings.Split(forged, ".")
	tampered := forgedParts[0] + "." + forgedParts[1] + "." + parts[2]

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id":  "a",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"id":  "a",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "a"}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		reason error
	}{
		{"expired token", expired, auth.ErrTokenExpired},
		{"wrong secret", foreign, auth.ErrTokenSignature},
		{"tampered payload", tampered, auth.ErrTokenSignature},
		{"none algorithm", unsigned, auth.ErrTokenSignature},
		{"unexpected algorithm", hs512, auth.ErrTokenSignature},
		{"missing expiry", noExpiry, auth.ErrTokenClaims},
		{"malformed", "not-a-token", auth.ErrTokenMalformed},
		{"empty", "", auth.ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := now.Verify(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.reason)
			assert.Equal(t, auth.Claims{}, claims)
		})
	}
}

func TestJWTCodec_IssuerMismatch(t *testing.T) {
	issuer := newTestCodec(t, auth.WithIssuer("accounts"))
	other := newTestCodec(t, auth.WithIssuer("elsewhere"))

	token, err := other.Issue(auth.Claims{ID: "a"}, time.Minute)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenClaims)
}
