package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByToken(ctx context.Context, tokenHash string) (*domain.Session, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) ([]*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByToken(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
