// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// Querier is the subset of pgxpool.Pool used by the repository. pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, name, email, password_hash, role, active, reset_token, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Querier
	now  func() time.Time
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Querier) *AccountRepository {
	return &AccountRepository{pool: pool, now: time.Now}
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// GetByResetToken retrieves the account holding token as its pending reset token.
func (r *AccountRepository) GetByResetToken(ctx context.Context, token string) (*auth.Account, error) {
	if token == "" {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_token = $1`, token)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Never log the token itself.
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_RESET_TOKEN_FAILED").
			With("operation", "get account by reset token").
			Wrap(err)
	}
	return account, nil
}

// Create stores a new account. A second account with the same email fails with
// auth.ErrDuplicateAccount.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		account.ID.String(),
		account.Name,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.Active,
		nullable(account.ResetToken),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE").
				With("email", account.Email).
				Wrap(fmt.Errorf("%w: %w", auth.ErrDuplicateAccount, err))
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	return nil
}

// Update applies the fields set in update and returns the stored account. A
// conditional update whose reset token no longer matches affects no row and is
// reported as not found.
func (r *AccountRepository) Update(ctx context.Context, id ulid.ULID, update auth.AccountUpdate) (*auth.Account, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	sets := make([]string, 0, 4)
	args := []any{id.String()}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.ResetToken != nil {
		add("reset_token", nullable(*update.ResetToken))
	}
	if update.Active != nil {
		add("active", *update.Active)
	}
	add("updated_at", r.now())

	where := "id = $1"
	if update.IfResetToken != nil {
		args = append(args, *update.IfResetToken)
		where += fmt.Sprintf(" AND reset_token = $%d", len(args))
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE `+where+` RETURNING `+accountColumns,
		args...)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr      string
		account    auth.Account
		resetToken *string
	)
	err := row.Scan(
		&idStr,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.Active,
		&resetToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.With("operation", "scan account").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	account.ID = id
	if resetToken != nil {
		account.ResetToken = *resetToken
	}
	return &account, nil
}

// nullable stores the empty string as NULL so the partial unique index ignores it.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
