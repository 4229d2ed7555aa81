// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the account operations as a JSON API under /auth.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"

	"github.com/holomush/accounts/internal/auth"
)

// AuthService is the subset of *auth.Service the API calls.
type AuthService interface {
	Signup(ctx context.Context, req auth.SignupRequest) auth.Response
	Signin(ctx context.Context, req auth.SigninRequest) auth.Response
	Activate(ctx context.Context, token string) auth.Response
	ForgotPassword(ctx context.Context, email string) auth.Response
	ResetPassword(ctx context.Context, req auth.ResetPasswordRequest) auth.Response
}

// RequestRecorder records served requests. *observability.Metrics implements it.
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// Config wires the router.
type Config struct {
	Service AuthService
	Logger  *slog.Logger
	// Metrics may be nil.
	Metrics RequestRecorder
	// AllowedHosts restricts the Host header when non-empty.
	AllowedHosts []string
	// Development relaxes the host check for local use.
	Development bool
}

// NewRouter builds the API handler.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		service:  cfg.Service,
		logger:   logger,
		validate: newValidator(),
	}

	sec := secure.New(secure.Options{
		AllowedHosts:       cfg.AllowedHosts,
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "no-referrer",
		IsDevelopment:      cfg.Development,
	})
	sec.SetBadHostHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, auth.Response{Message: "Unknown host."})
	}))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(sec.Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, auth.Response{Message: "Not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, auth.Response{Message: "Method not allowed."})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/signin", h.signin)
		r.Post("/email-activate", h.activate)
		r.Get("/email-activate/{token}", h.activateLink)
		r.Post("/forgot-password", h.forgotPassword)
		r.Put("/reset-password", h.resetPassword)
	})
	return r
}

// requestLogger logs each request and feeds the metrics recorder. The route
// pattern is read after the handler runs, once chi has resolved it.
func requestLogger(logger *slog.Logger, metrics RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			elapsed := time.Since(start)
			if metrics != nil {
				metrics.RecordHTTPRequest(r.Method, route, status, elapsed)
			}
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"duration", elapsed,
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}
