package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/jmercier/aegis/internal/config"
)

// EmailService delivers account lifecycle notifications.
type EmailService interface {
	SendWelcomeEmail(ctx context.Context, to, username, temporaryPassword string) error
	SendRejectionEmail(ctx context.Context, to, reason string) error
}

// SESEmailService sends mail through AWS SES.
type SESEmailService struct {
	client *ses.Client
	from   string
	logger *slog.Logger
}

func NewSESEmailService(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (*SESEmailService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &SESEmailService{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromAddress,
		logger: logger,
	}, nil
}

func (s *SESEmailService) SendWelcomeEmail(ctx context.Context, to, username, temporaryPassword string) error {
	subject := "Your account has been approved"
	body := fmt.Sprintf(
		"Your registration has been approved.\n\n"+
			"Username: %s\n"+
			"Temporary password: %s\n\n"+
			"You will be required to change this password on first login.\n",
		username, temporaryPassword,
	)
	return s.send(ctx, to, subject, body)
}

func (s *SESEmailService) SendRejectionEmail(ctx context.Context, to, reason string) error {
	subject := "Your registration request"
	body := "Your registration request was not approved."
	if reason != "" {
		body = fmt.Sprintf("%s\n\nReason: %s\n", body, reason)
	}
	return s.send(ctx, to, subject, body)
}

func (s *SESEmailService) send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.logger.InfoContext(ctx, "email sent", "to", to, "subject", subject)
	return nil
}

// NoopEmailService is used when email delivery is disabled. It logs what
// would have been sent.
type NoopEmailService struct {
	logger *slog.Logger
}

func NewNoopEmailService(logger *slog.Logger) *NoopEmailService {
	return &NoopEmailService{logger: logger}
}

func (s *NoopEmailService) SendWelcomeEmail(ctx context.Context, to, username, _ string) error {
	s.logger.InfoContext(ctx, "email delivery disabled, skipping welcome email",
		"to", to, "username", username)
	return nil
}

func (s *NoopEmailService) SendRejectionEmail(ctx context.Context, to, _ string) error {
	s.logger.InfoContext(ctx, "email delivery disabled, skipping rejection email", "to", to)
	return nil
}
