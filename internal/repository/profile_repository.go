package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
)

// ProfileRepository stores the users table. Rows are never deleted.
type ProfileRepository interface {
	// GetByID returns ErrNotFound when the identity has no row yet.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error)
	// CreateIfAbsent inserts profile unless a row with its id exists and
	// reports whether it inserted.
	CreateIfAbsent(ctx context.Context, profile *domain.UserProfile) (bool, error)
	// UpsertEditable writes username, wallet_address, email,
	// profile_image_url and updated_at only.
	UpsertEditable(ctx context.Context, profile *domain.UserProfile) error
	// IncrementBalance calls the increment_vibz_balance procedure.
	IncrementBalance(ctx context.Context, id uuid.UUID, amount int64) error
	GetBalance(ctx context.Context, id uuid.UUID) (int64, error)
}
