// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accounts/pkg/errutil"
)

// Operation names, used for logging, metrics and spans.
const (
	OpSignup         = "signup"
	OpSignin         = "signin"
	OpActivate       = "activate"
	OpForgotPassword = "forgot_password"
	OpResetPassword  = "reset_password"
)

var tracer = otel.Tracer("github.com/holomush/accounts/internal/auth")

// OutcomeRecorder counts operation outcomes.
type OutcomeRecorder interface {
	RecordAuthOutcome(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOutcome(string, string) {}

// Response is the uniform result of every operation.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	// Kind is KindNone on success. Transports use it to pick a status code.
	Kind Kind `json:"-"`
}

// SignupRequest carries signup input.
type SignupRequest struct {
	Name     string
	Email    string
	Password string
}

// SigninRequest carries signin input.
type SigninRequest struct {
	Email    string
	Password string
}

// ResetPasswordRequest carries reset-password input.
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ValidationError describes rejected input. Its message is safe to show to callers.
type ValidationError struct {
	Field   string
	Message string
	cause   error
}

func (e *ValidationError) Error() string {
	if e.cause != nil {
		return e.Field + ": " + e.cause.Error()
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.cause }

// Service runs the account lifecycle: signup, signin, activation and password reset.
type Service struct {
	accounts AccountRepository
	hasher   PasswordHasher
	tokens   TokenCodec
	notifier Notifier
	cfg      Config
	domains  []glob.Glob
	logger   *slog.Logger
	recorder OutcomeRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r OutcomeRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a Service. All collaborators are required.
func NewService(
	accounts AccountRepository,
	hasher PasswordHasher,
	tokens TokenCodec,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if accounts == nil {
		return nil, oops.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token codec is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = DefaultRole
	}
	domains, err := compileDomains(cfg.AllowedEmailDomains)
	if err != nil {
		return nil, err
	}

	s := &Service{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		domains:  domains,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Signup registers an inactive account and mails an activation link.
// The activation token is never returned to the caller.
func (s *Service) Signup(ctx context.Context, req SignupRequest) Response {
	ctx, span := tracer.Start(ctx, "auth.signup")
	defer span.End()

	err := s.signup(ctx, req)
	return s.finish(ctx, span, OpSignup, err, Response{Success: true, Message: msgSignupSent})
}

// Signin exchanges credentials for a session token.
func (s *Service) Signin(ctx context.Context, req SigninRequest) Response {
	ctx, span := tracer.Start(ctx, "auth.signin")
	defer span.End()

	token, err := s.signin(ctx, req)
	return s.finish(ctx, span, OpSignin, err, Response{Success: true, Token: token})
}

// Activate marks the account named by an activation token as active. Repeating it is harmless.
func (s *Service) Activate(ctx context.Context, token string) Response {
	ctx, span := tracer.Start(ctx, "auth.activate")
	defer span.End()

	err := s.activate(ctx, token)
	return s.finish(ctx, span, OpActivate, err, Response{Success: true, Message: msgActivated})
}

// ForgotPassword stores a single-use reset token on the account and mails it.
func (s *Service) ForgotPassword(ctx context.Context, email string) Response {
	ctx, span := tracer.Start(ctx, "auth.forgot_password")
	defer span.End()

	err := s.forgotPassword(ctx, email)
	return s.finish(ctx, span, OpForgotPassword, err, Response{Success: true, Message: msgResetSent})
}

// ResetPassword consumes a reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) Response {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer span.End()

	err := s.resetPassword(ctx, req)
	return s.finish(ctx, span, OpResetPassword, err, Response{Success: true, Message: msgPasswordChanged})
}

func (s *Service) signup(ctx context.Context, req SignupRequest) error {
	email := NormalizeEmail(req.Email)
	if err := ValidateName(req.Name); err != nil {
		return invalid(OpSignup, "name", "Please provide a name.", err)
	}
	if err := ValidateEmail(email); err != nil {
		return invalid(OpSignup, "email", "Please provide a valid email address.", err)
	}
	if req.Password == "" {
		return invalid(OpSignup, "password", "Please provide a password.", nil)
	}
	if !s.domainAllowed(email) {
		return invalid(OpSignup, "email", "Signups from this email domain are not allowed.", nil)
	}

	_, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return fail(KindDuplicateAccount, ErrDuplicateAccount, OpSignup, nil)
	case !errors.Is(err, ErrNotFound):
		return fail(KindStorage, ErrStorage, OpSignup, err)
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return fail(KindHashing, ErrHashing, OpSignup, err)
	}

	account, err := NewAccount(req.Name, email, hash, s.cfg.DefaultRole)
	if err != nil {
		return fail(KindHashing, ErrHashing, OpSignup, err)
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return fail(KindDuplicateAccount, ErrDuplicateAccount, OpSignup, err)
		}
		return fail(KindStorage, ErrStorage, OpSignup, err)
	}
	s.logger.InfoContext(ctx, "account created", "account_id", account.ID.String())

	token, err := s.tokens.Issue(Claims{
		ID:    account.ID.String(),
		Name:  account.Name,
		Email: account.Email,
		Role:  account.Role,
	}, s.cfg.ActivationTTL)
	if err != nil {
		return fail(KindTokenIssue, ErrTokenIssue, OpSignup, err)
	}

	msg, err := activationMessage(account.Email, s.cfg.ActivationURL, token, humanizeTTL(s.cfg.ActivationTTL))
	if err != nil {
		return fail(KindDelivery, ErrDelivery, OpSignup, err)
	}
	// The account stays in place if delivery fails; it remains inactive.
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fail(KindDelivery, ErrDelivery, OpSignup, err)
	}
	return nil
}

func (s *Service) signin(ctx context.Context, req SigninRequest) (string, error) {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return "", invalid(OpSignin, "email", "Please provide an email address.", nil)
	}
	if req.Password == "" {
		return "", invalid(OpSignin, "password", "Please provide a password.", nil)
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fail(KindNotFound, ErrNotFound, OpSignin, err)
		}
		return "", fail(KindStorage, ErrStorage, OpSignin, err)
	}

	// Password before active: an inactive account with a wrong password reports
	// invalid credentials, not inactivity.
	ok, err := s.hasher.Verify(ctx, req.Password, account.PasswordHash)
	if err != nil {
		return "", fail(KindHashing, ErrHashing, OpSignin, err)
	}
	if !ok {
		return "", fail(KindInvalidCredentials, ErrInvalidCredentials, OpSignin, nil)
	}
	if !account.Active {
		return "", fail(KindInactiveAccount, ErrInactiveAccount, OpSignin, nil)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, req.Password)
	}

	token, err := s.tokens.Issue(Claims{
		ID:    account.ID.String(),
		Email: account.Email,
		Role:  account.Role,
	}, s.cfg.SessionTTL)
	if err != nil {
		return "", fail(KindTokenIssue, ErrTokenIssue, OpSignin, err)
	}
	return token, nil
}

func (s *Service) activate(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fail(KindMissingToken, ErrMissingToken, OpActivate, nil)
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return fail(KindInvalidToken, ErrInvalidToken, OpActivate, err)
	}
	if claims.Email == "" {
		return fail(KindInvalidToken, ErrInvalidToken, OpActivate, nil)
	}

	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(claims.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(KindInvalidToken, ErrInvalidToken, OpActivate, err)
		}
		return fail(KindStorage, ErrStorage, OpActivate, err)
	}
	if account.Active {
		return nil
	}

	active := true
	if _, err := s.accounts.Update(ctx, account.ID, AccountUpdate{Active: &active}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(KindInvalidToken, ErrInvalidToken, OpActivate, err)
		}
		return fail(KindStorage, ErrStorage, OpActivate, err)
	}
	s.logger.InfoContext(ctx, "account activated", "account_id", account.ID.String())
	return nil
}

func (s *Service) forgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return invalid(OpForgotPassword, "email", "Please provide an email address.", nil)
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(KindNotFound, ErrNotFound, OpForgotPassword, err)
		}
		return fail(KindStorage, ErrStorage, OpForgotPassword, err)
	}

	token, err := s.tokens.Issue(Claims{ID: account.ID.String()}, s.cfg.ResetTTL)
	if err != nil {
		return fail(KindTokenIssue, ErrTokenIssue, OpForgotPassword, err)
	}

	// Persist before notifying so a delivered link always resolves.
	if _, err := s.accounts.Update(ctx, account.ID, AccountUpdate{ResetToken: &token}); err != nil {
		return fail(KindStorage, ErrStorage, OpForgotPassword, err)
	}

	msg, err := resetMessage(account.Email, s.cfg.ResetURL, token, humanizeTTL(s.cfg.ResetTTL))
	if err != nil {
		return fail(KindDelivery, ErrDelivery, OpForgotPassword, err)
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		return fail(KindDelivery, ErrDelivery, OpForgotPassword, err)
	}
	return nil
}

func (s *Service) resetPassword(ctx context.Context, req ResetPasswordRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return fail(KindMissingToken, ErrMissingToken, OpResetPassword, nil)
	}
	if req.NewPassword == "" {
		return invalid(OpResetPassword, "newPassword", "Please provide a new password.", nil)
	}

	if _, err := s.tokens.Verify(token); err != nil {
		s.clearStaleReset(ctx, token)
		return fail(KindInvalidToken, ErrInvalidToken, OpResetPassword, err)
	}

	// Looking up by the stored value, not by claims, makes the token single-use.
	account, err := s.accounts.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(KindInvalidToken, ErrInvalidToken, OpResetPassword, err)
		}
		return fail(KindStorage, ErrStorage, OpResetPassword, err)
	}

	hash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return fail(KindHashing, ErrHashing, OpResetPassword, err)
	}

	// The update consumes the token only if it is still the stored one, so a
	// concurrent reset with the same token loses.
	cleared := ""
	update := AccountUpdate{PasswordHash: &hash, ResetToken: &cleared, IfResetToken: &token}
	if err := update.Validate(); err != nil {
		return fail(KindStorage, ErrStorage, OpResetPassword, err)
	}
	if _, err := s.accounts.Update(ctx, account.ID, update); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(KindInvalidToken, ErrInvalidToken, OpResetPassword, err)
		}
		return fail(KindStorage, ErrStorage, OpResetPassword, err)
	}
	s.logger.InfoContext(ctx, "password reset", "account_id", account.ID.String())
	return nil
}

// clearStaleReset drops a stored reset token that no longer verifies. Best effort.
func (s *Service) clearStaleReset(ctx context.Context, token string) {
	account, err := s.accounts.GetByResetToken(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "stale reset token lookup failed", "error", err)
		}
		return
	}
	cleared := ""
	if _, err := s.accounts.Update(ctx, account.ID, AccountUpdate{ResetToken: &cleared, IfResetToken: &token}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return
		}
		s.logger.WarnContext(ctx, "failed to clear stale reset token",
			"account_id", account.ID.String(),
			"error", err,
		)
		return
	}
	s.logger.InfoContext(ctx, "cleared stale reset token", "account_id", account.ID.String())
}

// upgradeHash re-encodes a legacy hash after a successful signin. Best effort.
func (s *Service) upgradeHash(ctx context.Context, account *Account, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"account_id", account.ID.String(),
			"error", err,
		)
		return
	}
	if _, err := s.accounts.Update(ctx, account.ID, AccountUpdate{PasswordHash: &hash}); err != nil {
		s.logger.WarnContext(ctx, "failed to store upgraded password hash",
			"account_id", account.ID.String(),
			"error", err,
		)
		return
	}
	s.logger.InfoContext(ctx, "upgraded password hash", "account_id", account.ID.String())
}

func (s *Service) domainAllowed(email string) bool {
	if len(s.domains) == 0 {
		return true
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	for _, g := range s.domains {
		if g.Match(domain) {
			return true
		}
	}
	return false
}

// finish converts an operation result into its Response and records the outcome.
func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error, success Response) Response {
	if err == nil {
		s.recorder.RecordAuthOutcome(op, "success")
		span.SetAttributes(attribute.String("auth.outcome", "success"))
		s.logger.DebugContext(ctx, "auth operation succeeded", "operation", op)
		return success
	}

	kind := KindOf(err)
	outcome := strings.ToLower(string(kind))
	s.recorder.RecordAuthOutcome(op, outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	span.RecordError(err)

	switch {
	case kind.Internal():
		errutil.LogError(ctx, s.logger, "auth operation failed", err, "operation", op)
	case kind == KindDelivery:
		s.logger.WarnContext(ctx, "auth notification failed", "operation", op, "error", err)
	default:
		s.logger.InfoContext(ctx, "auth operation rejected", "operation", op, "kind", string(kind))
	}

	return Response{Success: false, Message: failureMessage(op, kind, err), Kind: kind}
}

func invalid(op, field, message string, cause error) error {
	return fail(KindInvalidInput, ErrInvalidInput, op, &ValidationError{Field: field, Message: message, cause: cause})
}

func humanizeTTL(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
