package email

import (
	"context"
)

// EmailService sends the transactional emails of the profile service.
type EmailService interface {
	// SendWelcomeEmail greets an identity after sign up
	SendWelcomeEmail(ctx context.Context, to, name string) error

	// SendPurchaseReceipt confirms a completed $VIBZ purchase
	SendPurchaseReceipt(ctx context.Context, to, name string, receipt Receipt) error
}

// Receipt describes a credited purchase.
type Receipt struct {
	Amount    int64
	Balance   int64
	SessionID string
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	APIKey     string
	FromEmail  string
	FromName   string
	AccountURL string // link back to the account page
}

// NoopEmailService drops every email. Used when email is disabled.
type NoopEmailService struct{}

func (NoopEmailService) SendWelcomeEmail(context.Context, string, string) error { return nil }

func (NoopEmailService) SendPurchaseReceipt(context.Context, string, string, Receipt) error {
	return nil
}
