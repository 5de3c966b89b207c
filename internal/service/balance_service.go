package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/events"
	"github.com/MatsTornblom/Vibzprofile/internal/metrics"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
)

// Reasons recorded with a balance change.
const (
	ReasonIncrement = "increment"
	ReasonFreeGrant = "free_grant"
	ReasonPurchase  = "purchase"
)

var (
	ErrGrantInFlight       = errors.New("a free $VIBZ grant is already in progress")
	ErrBalanceUpdateFailed = errors.New("failed to update $VIBZ balance")
	ErrBalanceReadFailed   = errors.New("$VIBZ were added but the new balance could not be loaded")
)

// InFlightGuard refuses a second concurrent run of the same operation.
type InFlightGuard interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// BalanceService adds $VIBZ through the database increment procedure.
type BalanceService struct {
	repo        repository.ProfileRepository
	guard       InFlightGuard
	bus         events.Publisher
	grantAmount int64
	logger      *zap.Logger
	now         func() time.Time
}

// NewBalanceService wires the service. guard may be nil.
func NewBalanceService(repo repository.ProfileRepository, guard InFlightGuard, bus events.Publisher, cfg *config.Config, logger *zap.Logger) *BalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{
		repo:        repo,
		guard:       guard,
		bus:         bus,
		grantAmount: cfg.Checkout.FreeGrantAmount,
		logger:      logger,
		now:         time.Now,
	}
}

// AddBalance increments the balance and returns the re-read value. It is
// not idempotent: two calls add twice.
func (s *BalanceService) AddBalance(ctx context.Context, identityID uuid.UUID, amount int64) (int64, bool) {
	balance, err := s.Credit(ctx, identityID, amount, ReasonIncrement)
	return balance, err == nil
}

// Credit is AddBalance with the reason recorded in logs, metrics and the
// BalanceChanged event. ErrBalanceUpdateFailed means nothing was added.
// ErrBalanceReadFailed means the increment committed and only the read
// back failed, so callers must not retry it.
func (s *BalanceService) Credit(ctx context.Context, identityID uuid.UUID, amount int64, reason string) (int64, error) {
	if identityID == uuid.Nil || amount <= 0 {
		s.logger.Warn("rejected balance increment",
			zap.String("identity_id", identityID.String()),
			zap.Int64("amount", amount),
		)
		return 0, ErrBalanceUpdateFailed
	}

	if err := s.repo.IncrementBalance(ctx, identityID, amount); err != nil {
		s.logger.Error("failed to increment balance",
			zap.String("identity_id", identityID.String()),
			zap.Int64("amount", amount),
			zap.String("reason", reason),
			zap.Error(err),
		)
		metrics.RecordBalanceIncrement(reason, amount, false)
		return 0, fmt.Errorf("%w: %v", ErrBalanceUpdateFailed, err)
	}
	metrics.RecordBalanceIncrement(reason, amount, true)

	changed := domain.BalanceChanged{
		IdentityID: identityID,
		Amount:     amount,
		Reason:     reason,
	}

	balance, err := s.repo.GetBalance(ctx, identityID)
	if err != nil {
		s.logger.Error("failed to read balance after increment",
			zap.String("identity_id", identityID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		changed.OccurredAt = s.now()
		s.bus.Publish(ctx, changed)
		return 0, fmt.Errorf("%w: %v", ErrBalanceReadFailed, err)
	}

	changed.Balance = balance
	changed.BalanceKnown = true
	changed.OccurredAt = s.now()
	s.bus.Publish(ctx, changed)

	return balance, nil
}

// GrantFree adds the free grant. A grant already running for the same
// identity makes this call fail with ErrGrantInFlight.
func (s *BalanceService) GrantFree(ctx context.Context, identityID uuid.UUID) (int64, error) {
	if identityID == uuid.Nil {
		return 0, ErrNotAuthenticated
	}

	if s.guard != nil {
		release, ok, err := s.guard.Acquire(ctx, identityID.String())
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrGrantInFlight
		}
		defer release()
	}

	return s.Credit(ctx, identityID, s.grantAmount, ReasonFreeGrant)
}
