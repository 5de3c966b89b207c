package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
)

const accountColumns = `id, email, password_hash, status, failed_logins, locked_until,
		created_at, updated_at, last_sign_in_at`

// uniqueViolation is the PostgreSQL code for a duplicate key.
const uniqueViolation = "23505"

type accountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *sqlx.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

// Create inserts a new account into the database
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (
			id, email, password_hash, status, failed_logins, locked_until,
			created_at, updated_at, last_sign_in_at
		) VALUES (
			:id, :email, :password_hash, :status, :failed_logins, :locked_until,
			:created_at, :updated_at, :last_sign_in_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("account %s: %w", account.Email, repository.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var account domain.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	return &account, nil
}

// GetByEmail retrieves an account by email, case-insensitively
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`

	var account domain.Account
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", email, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return &account, nil
}

// Update updates status and lock fields of an account
func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET email = :email,
			password_hash = :password_hash,
			status = :status,
			failed_logins = :failed_logins,
			locked_until = :locked_until,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, account)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("account %s: %w", account.ID, repository.ErrNotFound)
	}

	return nil
}

// UpdateLastSignIn records a successful sign in
func (r *accountRepository) UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE accounts SET last_sign_in_at = $2, updated_at = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last sign in: %w", err)
	}

	return nil
}

// IncrementFailedLogins bumps the failure counter and returns its new value
func (r *accountRepository) IncrementFailedLogins(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE accounts
		SET failed_logins = failed_logins + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING failed_logins`

	var failed int
	if err := r.db.GetContext(ctx, &failed, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to increment failed logins: %w", err)
	}

	return failed, nil
}

// ResetFailedLogins clears the failure counter and any lock
func (r *accountRepository) ResetFailedLogins(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE accounts
		SET failed_logins = 0, status = 'active', locked_until = NULL, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to reset failed logins: %w", err)
	}

	return nil
}
