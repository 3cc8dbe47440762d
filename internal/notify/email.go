package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailService sends mail via SendGrid. It serves two roles: an alert
// Channel for urgent-overdue notifications and the transport for approved
// draft replies.
type EmailService struct {
	apiKey       string
	supportEmail string
}

// NewEmailService creates a new email service instance.
func NewEmailService(apiKey, supportEmail string) *EmailService {
	return &EmailService{
		apiKey:       apiKey,
		supportEmail: supportEmail,
	}
}

// Name implements Channel.
func (es *EmailService) Name() string { return "email" }

// Send delivers an urgent-thread alert to the support address.
func (es *EmailService) Send(ctx context.Context, message string) error {
	return es.send(ctx, es.supportEmail, "Urgent support thread pending", message)
}

// SendReply delivers an approved draft reply to the customer.
func (es *EmailService) SendReply(ctx context.Context, to, subject, body string) error {
	return es.send(ctx, to, subject, body)
}

func (es *EmailService) send(_ context.Context, to, subject, body string) error {
	if es.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}

	from := mail.NewEmail("Mailcoach", es.supportEmail)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, body, body)

	client := sendgrid.NewSendClient(es.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
