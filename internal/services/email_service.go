package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/havenwell/aegis/internal/models"
	"github.com/havenwell/aegis/pkg/logger"
)

// EmailService defines the interface for sending verification codes and
// security alerts
type EmailService interface {
	SendVerificationCode(ctx context.Context, email, code, purpose string, expiresIn time.Duration) error
	SendSecurityAlert(ctx context.Context, email, alertType, ipAddress, userAgent string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	adminEmail  string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, adminEmail string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		adminEmail:  adminEmail,
		logger:      logger,
	}, nil
}

// SendVerificationCode sends a one-time code to the user
func (s *AWSSESEmailService) SendVerificationCode(ctx context.Context, email, code, purpose string, expiresIn time.Duration) error {
	subject := "Your verification code"
	action := "complete your sign in"
	if purpose == models.CodePurposeRegistration {
		subject = "Confirm your registration"
		action = "complete your registration"
	}

	minutes := int(expiresIn.Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 20px; background-color: #f8f9fa; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
        </div>
        <p>Use this code to %s:</p>
        <div class="code">%s</div>
        <div class="warning">
            <strong>Security Notice:</strong> This code will expire in %d minutes. Never share it with anyone.
        </div>
        <p><strong>Didn't request this code?</strong><br>
        If you didn't request this code, you can ignore this email.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, subject, action, code, minutes)

	textBody := fmt.Sprintf(`%s

Use this code to %s:

    %s

Security Notice: This code will expire in %d minutes. Never share it with anyone.

Didn't request this code?
If you didn't request this code, you can ignore this email.

This is an automated message. Please do not reply to this email.
`, subject, action, code, minutes)

	return s.send(ctx, []string{email}, subject, htmlBody, textBody)
}

// SendSecurityAlert notifies the account holder and the security admin about
// suspicious sign-in activity
func (s *AWSSESEmailService) SendSecurityAlert(ctx context.Context, email, alertType, ipAddress, userAgent string) error {
	subject := "Security alert: unusual sign-in activity"
	description := "Multiple failed sign-in attempts were made on your account."
	if alertType == models.AlertBruteForce {
		subject = "Security alert: possible automated attack"
		description = "Rapid repeated sign-in attempts were detected on your account, which may indicate an automated attack."
	}

	now := time.Now().UTC().Format(time.RFC1123)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8d7da; padding: 20px; text-align: center; border-radius: 4px; }
        .details { background-color: #f8f9fa; padding: 15px; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Security Alert</h1>
        </div>
        <p>%s</p>
        <div class="details">
            <p><strong>Time:</strong> %s</p>
            <p><strong>IP address:</strong> %s</p>
            <p><strong>Device:</strong> %s</p>
        </div>
        <p>If this was you, no action is needed. If you don't recognize this activity, we recommend you secure your account immediately.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, description, now, ipAddress, userAgent)

	textBody := fmt.Sprintf(`Security Alert

%s

Time: %s
IP address: %s
Device: %s

If this was you, no action is needed. If you don't recognize this activity, we recommend you secure your account immediately.

This is an automated message. Please do not reply to this email.
`, description, now, ipAddress, userAgent)

	recipients := []string{email}
	if s.adminEmail != "" {
		recipients = append(recipients, s.adminEmail)
	}

	return s.send(ctx, recipients, subject, htmlBody, textBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, to []string, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", logger.SanitizedEmail(to[0])),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", logger.SanitizedEmail(to[0])),
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}
