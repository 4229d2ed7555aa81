// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/holomush/accounts/internal/auth"
)

// maxBodyBytes caps request bodies; every payload here is a handful of short strings.
const maxBodyBytes = 64 << 10

const msgMalformed = "The request body is not valid JSON."

type handler struct {
	service  AuthService
	logger   *slog.Logger
	validate *validator.Validate
}

// Request bodies. The upper bounds keep oversized input away from the hasher;
// presence and format are checked by the Auth Service.
type signupBody struct {
	Name     string `json:"name" validate:"max=100"`
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=1024"`
}

type signinBody struct {
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=1024"`
}

type tokenBody struct {
	Token string `json:"token" validate:"max=4096"`
}

type emailBody struct {
	Email string `json:"email" validate:"max=254"`
}

type resetBody struct {
	ResetLink   string `json:"resetLink" validate:"max=4096"`
	NewPassword string `json:"newPassword" validate:"max=1024"`
	// NewPass is the older field name, still accepted.
	NewPass string `json:"newPass" validate:"max=1024"`
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, h.service.Signup(r.Context(), auth.SignupRequest{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
	}))
}

func (h *handler) signin(w http.ResponseWriter, r *http.Request) {
	var body signinBody
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, h.service.Signin(r.Context(), auth.SigninRequest{
		Email:    body.Email,
		Password: body.Password,
	}))
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, h.service.Activate(r.Context(), body.Token))
}

// activateLink serves the link embedded in the activation mail.
func (h *handler) activateLink(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if len(token) > 4096 {
		h.invalid(w, "token is too long.")
		return
	}
	h.respond(w, h.service.Activate(r.Context(), token))
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, h.service.ForgotPassword(r.Context(), body.Email))
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetBody
	if !h.decode(w, r, &body) {
		return
	}
	password := body.NewPassword
	if password == "" {
		password = body.NewPass
	}
	h.respond(w, h.service.ResetPassword(r.Context(), auth.ResetPasswordRequest{
		Token:       body.ResetLink,
		NewPassword: password,
	}))
}

// decode reads a JSON body into dst and runs the struct validator. On failure
// it writes the 400 response and returns false.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		h.logger.DebugContext(r.Context(), "malformed request body", "route", routePattern(r), "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, auth.Response{Message: "The request body is too large."})
			return false
		}
		h.invalid(w, msgMalformed)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.invalid(w, fieldMessage(verrs[0]))
			return false
		}
		h.invalid(w, msgMalformed)
		return false
	}
	return true
}

func (h *handler) invalid(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, auth.Response{Message: message})
}

func (h *handler) respond(w http.ResponseWriter, resp auth.Response) {
	writeJSON(w, StatusFor(resp.Kind), resp)
}

func writeJSON(w http.ResponseWriter, status int, body auth.Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Tag() == "max" {
		return fmt.Sprintf("%s is too long.", fe.Field())
	}
	return fmt.Sprintf("%s is invalid.", fe.Field())
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
