package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/MatsTornblom/Vibzprofile/internal/config"
	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/internal/metrics"
	"github.com/MatsTornblom/Vibzprofile/internal/repository"
	"github.com/MatsTornblom/Vibzprofile/pkg/checkout"
	"github.com/MatsTornblom/Vibzprofile/pkg/email"
)

const (
	metadataIdentity = "vibz_identity_id"
	metadataAmount   = "vibz_amount"

	webhookIdempotencyTTL = 7 * 24 * time.Hour
)

var (
	ErrCheckoutDisabled = errors.New("checkout is not configured")
	ErrUnknownPrice     = errors.New("unknown price")
	ErrInvalidWebhook   = errors.New("invalid webhook payload")
)

// SessionCreator requests a hosted checkout URL for a bearer token.
type SessionCreator interface {
	CreateSession(ctx context.Context, bearer string, params checkout.Params) (*checkout.Session, error)
}

// StripeSessions creates Stripe checkout sessions.
type StripeSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// IdempotencyMarker drops repeated webhook deliveries.
type IdempotencyMarker interface {
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, id string) error
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// CheckoutService starts hosted checkouts and credits completed ones.
type CheckoutService struct {
	client   SessionCreator
	stripe   StripeSessions
	balances *BalanceService
	profiles repository.ProfileRepository
	idem     IdempotencyMarker
	mailer   email.EmailService
	cfg      config.CheckoutConfig
	logger   *zap.Logger
}

// CheckoutServiceConfig contains the collaborators of CheckoutService.
// Stripe and Idempotency are only needed when this service also acts as
// the checkout endpoint.
type CheckoutServiceConfig struct {
	Client      SessionCreator
	Stripe      StripeSessions
	Balances    *BalanceService
	Profiles    repository.ProfileRepository
	Idempotency IdempotencyMarker
	Mailer      email.EmailService
	Config      config.CheckoutConfig
	Logger      *zap.Logger
}

func NewCheckoutService(cfg CheckoutServiceConfig) *CheckoutService {
	if cfg.Mailer == nil {
		cfg.Mailer = email.NoopEmailService{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CheckoutService{
		client:   cfg.Client,
		stripe:   cfg.Stripe,
		balances: cfg.Balances,
		profiles: cfg.Profiles,
		idem:     cfg.Idempotency,
		mailer:   cfg.Mailer,
		cfg:      cfg.Config,
		logger:   cfg.Logger,
	}
}

// Initiate asks the checkout endpoint for a hosted payment page and
// returns its URL. baseURL is where the success and cancel pages live.
func (s *CheckoutService) Initiate(ctx context.Context, session *domain.AuthSession, baseURL string) (string, error) {
	if session == nil || session.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	if s.client == nil {
		return "", ErrCheckoutDisabled
	}

	base := strings.TrimRight(baseURL, "/")
	result, err := s.client.CreateSession(ctx, session.AccessToken, checkout.Params{
		PriceID:    s.cfg.PriceID,
		Mode:       s.cfg.Mode,
		SuccessURL: base + "/success",
		CancelURL:  base + "/cancel",
	})
	if err != nil {
		metrics.RecordCheckoutSession("error")
		s.logger.Error("failed to create checkout session",
			zap.String("identity_id", session.User.ID.String()),
			zap.Error(err),
		)
		return "", err
	}

	metrics.RecordCheckoutSession("created")
	return result.URL, nil
}

// CreateStripeSession serves the checkout endpoint: it opens a Stripe
// checkout for the pack price on behalf of identityID.
func (s *CheckoutService) CreateStripeSession(ctx context.Context, identityID uuid.UUID, customerEmail string, params checkout.Params) (string, error) {
	if s.stripe == nil {
		return "", ErrCheckoutDisabled
	}
	if params.PriceID != s.cfg.PriceID {
		return "", ErrUnknownPrice
	}
	mode := params.Mode
	if mode == "" {
		mode = s.cfg.Mode
	}

	sp := &stripe.CheckoutSessionParams{
		Mode: stripe.String(mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		ClientReferenceID: stripe.String(identityID.String()),
	}
	if customerEmail != "" {
		sp.CustomerEmail = stripe.String(customerEmail)
	}
	sp.Context = ctx
	sp.AddMetadata(metadataIdentity, identityID.String())
	sp.AddMetadata(metadataAmount, strconv.FormatInt(s.cfg.PackAmount, 10))

	cs, err := s.stripe.New(sp)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	return cs.URL, nil
}

// HandleWebhook verifies and processes a Stripe delivery. A returned error
// makes Stripe retry.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Warn("failed to verify webhook signature", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		metrics.RecordWebhookEvent(string(event.Type), "ignored")
		result.Message = "Event type not handled"
		return result, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		metrics.RecordWebhookEvent(string(event.Type), "unpaid")
		result.Message = "Payment not completed"
		return result, nil
	}

	identityID, err := uuid.Parse(cs.ClientReferenceID)
	if err != nil {
		metrics.RecordWebhookEvent(string(event.Type), "rejected")
		return nil, fmt.Errorf("%w: client reference %q", ErrInvalidWebhook, cs.ClientReferenceID)
	}

	amount := s.cfg.PackAmount
	if raw, ok := cs.Metadata[metadataAmount]; ok {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			amount = parsed
		}
	}

	if s.idem != nil {
		fresh, err := s.idem.MarkProcessed(ctx, "stripe:"+event.ID, webhookIdempotencyTTL)
		if err != nil {
			return nil, err
		}
		if !fresh {
			metrics.RecordWebhookEvent(string(event.Type), "duplicate")
			result.Message = "Event already processed"
			return result, nil
		}
	}

	balance, err := s.balances.Credit(ctx, identityID, amount, ReasonPurchase)
	switch {
	case err == nil:
	case errors.Is(err, ErrBalanceReadFailed):
		// Credited already; keep the mark so a redelivery is dropped
		metrics.RecordWebhookEvent(string(event.Type), "credited")
		s.logger.Warn("purchase credited without balance read back",
			zap.String("event_id", event.ID),
			zap.String("identity_id", identityID.String()),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		result.Processed = true
		result.Message = "Credited"
		return result, nil
	default:
		if s.idem != nil {
			if err := s.idem.Forget(ctx, "stripe:"+event.ID); err != nil {
				s.logger.Error("failed to release webhook mark", zap.String("event_id", event.ID), zap.Error(err))
			}
		}
		metrics.RecordWebhookEvent(string(event.Type), "failed")
		return nil, err
	}

	metrics.RecordWebhookEvent(string(event.Type), "credited")
	s.logger.Info("purchase credited",
		zap.String("event_id", event.ID),
		zap.String("identity_id", identityID.String()),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
	)

	s.sendReceipt(ctx, identityID, &cs, amount, balance)

	result.Processed = true
	return result, nil
}

func (s *CheckoutService) sendReceipt(ctx context.Context, identityID uuid.UUID, cs *stripe.CheckoutSession, amount, balance int64) {
	var to, name string
	if cs.CustomerDetails != nil {
		to = cs.CustomerDetails.Email
	}
	if s.profiles != nil {
		if profile, err := s.profiles.GetByID(ctx, identityID); err == nil {
			name = profile.DisplayName()
			if to == "" && profile.Email != nil {
				to = *profile.Email
			}
		}
	}
	if to == "" {
		return
	}

	receipt := email.Receipt{Amount: amount, Balance: balance, SessionID: cs.ID}
	if err := s.mailer.SendPurchaseReceipt(ctx, to, name, receipt); err != nil {
		s.logger.Warn("failed to send purchase receipt", zap.String("identity_id", identityID.String()), zap.Error(err))
	}
}
