// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
)

// fakeService records the last call and answers with a canned Response.
type fakeService struct {
	resp auth.Response

	mu     sync.Mutex
	op     string
	signup auth.SignupRequest
	signin auth.SigninRequest
	token  string
	email  string
	reset  auth.ResetPasswordRequest
}

func (f *fakeService) record(op string) auth.Response {
	f.op = op
	return f.resp
}

func (f *fakeService) Signup(_ context.Context, req auth.SignupRequest) auth.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signup = req
	return f.record(auth.OpSignup)
}

func (f *fakeService) Signin(_ context.Context, req auth.SigninRequest) auth.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signin = req
	return f.record(auth.OpSignin)
}

func (f *fakeService) Activate(_ context.Context, token string) auth.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	return f.record(auth.OpActivate)
}

func (f *fakeService) ForgotPassword(_ context.Context, email string) auth.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = email
	return f.record(auth.OpForgotPassword)
}

func (f *fakeService) ResetPassword(_ context.Context, req auth.ResetPasswordRequest) auth.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = req
	return f.record(auth.OpResetPassword)
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *fakeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{method, route, status})
}

func newTestRouter(svc AuthService, rec RequestRecorder) http.Handler {
	return NewRouter(Config{
		Service: svc,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: rec,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, auth.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp auth.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec, resp
}

func TestRouter_PassesRequestsThrough(t *testing.T) {
	svc := &fakeService{resp: auth.Response{Success: true, Message: "ok"}}
	h := newTestRouter(svc, nil)

	rec, resp := do(t, h, http.MethodPost, "/auth/signup", `{"name":"Ada","email":"Ada@Example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Message)
	assert.Equal(t, auth.SignupRequest{Name: "Ada", Email: "Ada@Example.com", Password: "secret1"}, svc.signup)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	do(t, h, http.MethodPost, "/auth/signin", `{"email":"ada@example.com","password":"secret1"}`)
	assert.Equal(t, auth.SigninRequest{Email: "ada@example.com", Password: "secret1"}, svc.signin)

	do(t, h, http.MethodPost, "/auth/email-activate", `{"token":"tok-body"}`)
	assert.Equal(t, "tok-body", svc.token)

	do(t, h, http.MethodGet, "/auth/email-activate/tok-path", "")
	assert.Equal(t, "tok-path", svc.token)
	assert.Equal(t, auth.OpActivate, svc.op)

	do(t, h, http.MethodPost, "/auth/forgot-password", `{"email":"ada@example.com"}`)
	assert.Equal(t, "ada@example.com", svc.email)

	do(t, h, http.MethodPut, "/auth/reset-password", `{"resetLink":"reset-tok","newPassword":"secret2"}`)
	assert.Equal(t, auth.ResetPasswordRequest{Token: "reset-tok", NewPassword: "secret2"}, svc.reset)
}

func TestRouter_SigninReturnsToken(t *testing.T) {
	svc := &fakeService{resp: auth.Response{Success: true, Token: "jwt"}}
	rec, resp := do(t, newTestRouter(svc, nil), http.MethodPost, "/auth/signin", `{"email":"a@x.com","password":"pw"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jwt", resp.Token)
	assert.NotContains(t, rec.Body.String(), `"message"`)
}

func TestRouter_ResetAcceptsNewPass(t *testing.T) {
	svc := &fakeService{resp: auth.Response{Success: true}}
	h := newTestRouter(svc, nil)

	do(t, h, http.MethodPut, "/auth/reset-password", `{"resetLink":"tok","newPass":"legacy-field"}`)
	assert.Equal(t, "legacy-field", svc.reset.NewPassword)

	do(t, h, http.MethodPut, "/auth/reset-password", `{"resetLink":"tok","newPassword":"new","newPass":"old"}`)
	assert.Equal(t, "new", svc.reset.NewPassword, "newPassword wins when both are sent")
}

func TestRouter_StatusMapping(t *testing.T) {
	tests := []struct {
		kind   auth.Kind
		status int
	}{
		{auth.KindInvalidInput, http.StatusBadRequest},
		{auth.KindMissingToken, http.StatusBadRequest},
		{auth.KindInvalidCredentials, http.StatusUnauthorized},
		{auth.KindInvalidToken, http.StatusUnauthorized},
		{auth.KindInactiveAccount, http.StatusForbidden},
		{auth.KindNotFound, http.StatusNotFound},
		{auth.KindDuplicateAccount, http.StatusConflict},
		{auth.KindDelivery, http.StatusBadGateway},
		{auth.KindStorage, http.StatusInternalServerError},
		{auth.KindHashing, http.StatusInternalServerError},
		{auth.KindTokenIssue, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			svc := &fakeService{resp: auth.Response{Message: "failed", Kind: tt.kind}}
			rec, resp := do(t, newTestRouter(svc, nil), http.MethodPost, "/auth/signin", `{"email":"a@x.com","password":"pw"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, "failed", resp.Message)
			assert.NotContains(t, rec.Body.String(), string(tt.kind), "the kind is not part of the body")
		})
	}
}

func TestRouter_RejectsBadBodies(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		body    string
		status  int
		message string
	}{
		{"not json", "/auth/signup", `{"email":`, http.StatusBadRequest, msgMalformed},
		{"empty body", "/auth/signin", "", http.StatusBadRequest, msgMalformed},
		{"wrong type", "/auth/forgot-password", `{"email":42}`, http.StatusBadRequest, msgMalformed},
		{"oversized password", "/auth/signup", `{"name":"a","email":"a@x.com","password":"` + strings.Repeat("p", 1025) + `"}`, http.StatusBadRequest, "password is too long."},
		{"oversized email", "/auth/forgot-password", `{"email":"` + strings.Repeat("e", 255) + `"}`, http.StatusBadRequest, "email is too long."},
		{"oversized body", "/auth/signin", `{"email":"` + strings.Repeat("e", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge, "The request body is too large."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{resp: auth.Response{Success: true}}
			rec, resp := do(t, newTestRouter(svc, nil), http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			assert.Empty(t, svc.op, "service must not be called")
		})
	}
}

func TestRouter_NameLimitCountsCharacters(t *testing.T) {
	signup := func(name string) string {
		data, err := json.Marshal(map[string]string{"name": name, "email": "a@x.com", "password": "secret1"})
		require.NoError(t, err)
		return string(data)
	}

	t.Run("multibyte name at the limit reaches the service", func(t *testing.T) {
		name := strings.Repeat("名", auth.MaxNameLength)
		require.NoError(t, auth.ValidateName(name))

		svc := &fakeService{resp: auth.Response{Success: true}}
		rec, _ := do(t, newTestRouter(svc, nil), http.MethodPost, "/auth/signup", signup(name))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, name, svc.signup.Name)
	})

	t.Run("one character over is rejected at the edge", func(t *testing.T) {
		name := strings.Repeat("名", auth.MaxNameLength+1)
		require.Error(t, auth.ValidateName(name))

		svc := &fakeService{resp: auth.Response{Success: true}}
		rec, resp := do(t, newTestRouter(svc, nil), http.MethodPost, "/auth/signup", signup(name))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "name is too long.", resp.Message)
		assert.Empty(t, svc.op)
	})
}

func TestRouter_UnknownRoutes(t *testing.T) {
	h := newTestRouter(&fakeService{}, nil)

	rec, _ := do(t, h, http.MethodGet, "/auth/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/auth/signup", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_RecordsRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	h := newTestRouter(&fakeService{resp: auth.Response{Kind: auth.KindInvalidToken}}, rec)

	do(t, h, http.MethodGet, "/auth/email-activate/secret-token", "")
	do(t, h, http.MethodGet, "/nowhere", "")

	require.Len(t, rec.requests, 2)
	assert.Equal(t, recordedRequest{http.MethodGet, "/auth/email-activate/{token}", http.StatusUnauthorized}, rec.requests[0])
	assert.Equal(t, "unknown", rec.requests[1].route)
	assert.Equal(t, http.StatusNotFound, rec.requests[1].status)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	rec, _ := do(t, newTestRouter(&fakeService{resp: auth.Response{Success: true}}, nil),
		http.MethodPost, "/auth/forgot-password", `{"email":"a@x.com"}`)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouter_AllowedHosts(t *testing.T) {
	svc := &fakeService{resp: auth.Response{Success: true}}
	h := NewRouter(Config{
		Service:      svc,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		AllowedHosts: []string{"accounts.example.com"},
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", bytes.NewBufferString(`{"email":"a@x.com"}`))
	req.Host = "evil.example.net"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.op)

	req = httptest.NewRequest(http.MethodPost, "/auth/forgot-password", bytes.NewBufferString(`{"email":"a@x.com"}`))
	req.Host = "accounts.example.com"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.OpForgotPassword, svc.op)
}
