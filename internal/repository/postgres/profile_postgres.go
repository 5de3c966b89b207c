package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
)

const profileColumns = `id, username, wallet_address, profile_image_url, email,
		vibz_balance, messages_sent, messages_received, pending_messages,
		rewardpoints, latest_reward_amount, last_sign_in_at, created_at, updated_at`

type profileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(db *sqlx.DB) repository.ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE id = $1`

	var profile domain.UserProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

func (r *profileRepository) CreateIfAbsent(ctx context.Context, profile *domain.UserProfile) (bool, error) {
	query := `
		INSERT INTO users (
			id, username, wallet_address, profile_image_url, email,
			vibz_balance, created_at, updated_at
		) VALUES (
			:id, :username, :wallet_address, :profile_image_url, :email,
			:vibz_balance, :created_at, :updated_at
		)
		ON CONFLICT (id) DO NOTHING`

	result, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return false, fmt.Errorf("failed to create profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *profileRepository) UpsertEditable(ctx context.Context, profile *domain.UserProfile) error {
	query := `
		INSERT INTO users (
			id, username, wallet_address, email, profile_image_url,
			created_at, updated_at
		) VALUES (
			:id, :username, :wallet_address, :email, :profile_image_url,
			:updated_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			wallet_address = EXCLUDED.wallet_address,
			email = EXCLUDED.email,
			profile_image_url = EXCLUDED.profile_image_url,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	return nil
}

func (r *profileRepository) IncrementBalance(ctx context.Context, id uuid.UUID, amount int64) error {
	if _, err := r.db.ExecContext(ctx, `SELECT increment_vibz_balance($1, $2)`, id, amount); err != nil {
		return fmt.Errorf("failed to increment balance: %w", err)
	}
	return nil
}

func (r *profileRepository) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	var balance int64
	if err := r.db.GetContext(ctx, &balance, `SELECT vibz_balance FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("profile %s: %w", id, repository.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
