package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
)

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Update(ctx context.Context, account *domain.Account) error
	UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
	IncrementFailedLogins(ctx context.Context, id uuid.UUID) (int, error)
	ResetFailedLogins(ctx context.Context, id uuid.UUID) error
}
