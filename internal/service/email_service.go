package service

import (
	"context"
	"fmt"
	"html"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"
)

// Mailer sends the transactional emails of the app
type Mailer interface {
	SendWelcomeEmail(ctx context.Context, toEmail, toName string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetToken string) error
	SendJoinCodeEmail(ctx context.Context, toEmail, toName, childName, code string) error
}

// sesAPI is the part of the SES client the email service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     sesAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
}

// NewEmailService creates a new email service. With no sender address the
// service is disabled and every send is a no-op.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string) (*EmailService, error) {
	if fromEmail == "" {
		log.Info().Msg("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info().Str("from", fromEmail).Str("region", awsRegion).Msg("Email service enabled")
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL), nil
}

func newEmailService(client sesAPI, fromEmail, fromName, appBaseURL string) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendPasswordResetEmail sends a password reset email with a reset link
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetToken string) error {
	if !s.enabled {
		log.Debug().Str("to", toEmail).Msg("Skipping password reset email (service disabled)")
		return nil
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.appBaseURL, url.QueryEscape(resetToken))

	subject := "Reset your " + s.productName() + " password"
	htmlBody := s.renderHTML("Password Reset Request", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>We received a request to reset your password.</p>
			<p style="text-align: center;">
				<a href="%s" class="button">Reset Password</a>
			</p>
			<p>Or copy and paste this link into your browser:</p>
			<p style="word-break: break-all; font-size: 12px; color: #666;">%s</p>
			<p><strong>This link will expire in 1 hour.</strong></p>
			<p>If you didn't request a password reset, you can safely ignore this email.</p>`,
		html.EscapeString(toName), html.EscapeString(resetLink), html.EscapeString(resetLink)))

	textBody := fmt.Sprintf(`Hi %s,

We received a request to reset your password.

Click the link below to reset your password:
%s

This link will expire in 1 hour.

If you didn't request a password reset, you can safely ignore this email.
%s`, toName, resetLink, s.textFooter())

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendWelcomeEmail sends a welcome email to new users
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	if !s.enabled {
		log.Debug().Str("to", toEmail).Msg("Skipping welcome email (service disabled)")
		return nil
	}

	subject := "Welcome to " + s.productName() + "!"
	htmlBody := s.renderHTML(subject, fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Thank you for creating your account! Here's what you can do next:</p>
			<ul>
				<li>Add your children and give each one a join code</li>
				<li>Let them work through math, science and english lessons</li>
				<li>Watch their levels and stars grow</li>
			</ul>
			<p style="text-align: center;">
				<a href="%s/login" class="button">Get Started</a>
			</p>`,
		html.EscapeString(toName), html.EscapeString(s.appBaseURL)))

	textBody := fmt.Sprintf(`Hi %s,

Thank you for creating your account! Here's what you can do next:
- Add your children and give each one a join code
- Let them work through math, science and english lessons
- Watch their levels and stars grow

Get started: %s/login
%s`, toName, s.appBaseURL, s.textFooter())

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendJoinCodeEmail sends a parent the join code their child signs in with
func (s *EmailService) SendJoinCodeEmail(ctx context.Context, toEmail, toName, childName, code string) error {
	if !s.enabled {
		log.Debug().Str("to", toEmail).Msg("Skipping join code email (service disabled)")
		return nil
	}

	subject := fmt.Sprintf("%s's join code", childName)
	htmlBody := s.renderHTML("Your child's join code", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>%s can now sign in with this join code:</p>
			<p class="code">%s</p>
			<p>Keep it somewhere safe. You can generate a new code from your dashboard at any time.</p>`,
		html.EscapeString(toName), html.EscapeString(childName), html.EscapeString(code)))

	textBody := fmt.Sprintf(`Hi %s,

%s can now sign in with this join code:

    %s

Keep it somewhere safe. You can generate a new code from your dashboard at any time.
%s`, toName, childName, code, s.textFooter())

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

func (s *EmailService) productName() string {
	if s.fromName != "" {
		return s.fromName
	}
	return "TeachMe"
}

func (s *EmailService) textFooter() string {
	return fmt.Sprintf("\n---\nThis is an automated email from %s. Please do not reply.\n", s.productName())
}

func (s *EmailService) renderHTML(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #6c5ce7; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #6c5ce7; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.code { font-size: 32px; font-weight: bold; letter-spacing: 6px; text-align: center; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>%s</h1>
		</div>
		<div class="content">%s
		</div>
		<div class="footer">
			<p>This is an automated email from %s. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`, html.EscapeString(title), content, html.EscapeString(s.productName()))
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	event := log.Info().Str("to", toEmail).Str("subject", subject)
	if result != nil && result.MessageId != nil {
		event = event.Str("message_id", *result.MessageId)
	}
	event.Msg("Email sent")
	return nil
}
