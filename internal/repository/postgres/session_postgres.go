package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
)

const sessionColumns = `id, account_id, refresh_token_hash, user_agent,
		ip_address, expires_at, created_at`

type sessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &sessionRepository{db: db, now: time.Now}
}

// Create inserts a new session into the database
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (
			id, account_id, refresh_token_hash, user_agent,
			ip_address, expires_at, created_at
		) VALUES (
			:id, :account_id, :refresh_token_hash, :user_agent,
			:ip_address, :expires_at, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its ID
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	return &session, nil
}

// GetByToken retrieves a live session by its refresh token hash
func (r *sessionRepository) GetByToken(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE refresh_token_hash = $1 AND expires_at > $2`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, tokenHash, r.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found or expired: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}

	return &session, nil
}

// GetByAccountID retrieves the live sessions of an account, newest first
func (r *sessionRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE account_id = $1 AND expires_at > $2
		ORDER BY created_at DESC`

	var sessions []*domain.Session
	if err := r.db.SelectContext(ctx, &sessions, query, accountID, r.now()); err != nil {
		return nil, fmt.Errorf("failed to get sessions by account id: %w", err)
	}

	return sessions, nil
}

// Update rotates the refresh token hash and expiry of a session
func (r *sessionRepository) Update(ctx context.Context, session *domain.Session) error {
	query := `
		UPDATE sessions
		SET refresh_token_hash = :refresh_token_hash,
			user_agent = :user_agent,
			ip_address = :ip_address,
			expires_at = :expires_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return expectRow(result, "session", session.ID.String())
}

// Delete removes a session by ID
func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return expectRow(result, "session", id.String())
}

// DeleteByToken removes a session by refresh token hash
func (r *sessionRepository) DeleteByToken(ctx context.Context, tokenHash string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete session by token: %w", err)
	}

	return expectRow(result, "session", "by token")
}

// DeleteExpired removes all expired sessions and returns how many
func (r *sessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

func expectRow(result sql.Result, kind, key string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, key, repository.ErrNotFound)
	}
	return nil
}
