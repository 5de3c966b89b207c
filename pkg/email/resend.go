package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendEmailService implements EmailService using Resend
type ResendEmailService struct {
	client *resend.Client
	config *EmailConfig
	logger *zap.Logger
}

// NewResendEmailService creates a new Resend email service
func NewResendEmailService(config *EmailConfig, logger *zap.Logger) (*ResendEmailService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	if config.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResendEmailService{
		client: resend.NewClient(config.APIKey),
		config: config,
		logger: logger,
	}, nil
}

// SendWelcomeEmail sends a welcome email to a new identity
func (s *ResendEmailService) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return s.send(ctx, "welcome", to, "Welcome to Vibz!", WelcomeEmailTemplate(name, s.config.AccountURL))
}

// SendPurchaseReceipt sends the receipt of a $VIBZ purchase
func (s *ResendEmailService) SendPurchaseReceipt(ctx context.Context, to, name string, receipt Receipt) error {
	subject := fmt.Sprintf("You received %d $VIBZ", receipt.Amount)
	return s.send(ctx, "purchase_receipt", to, subject, PurchaseReceiptTemplate(name, receipt, s.config.AccountURL))
}

func (s *ResendEmailService) send(ctx context.Context, kind, to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail),
		To:      []string{to},
		Subject: subject,
		Html:    html,
		Tags:    []resend.Tag{{Name: "category", Value: kind}},
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.logger.Error("failed to send email",
			zap.String("kind", kind),
			zap.String("to", to),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}

	s.logger.Info("email sent",
		zap.String("kind", kind),
		zap.String("to", to),
		zap.String("id", sent.Id),
	)
	return nil
}
