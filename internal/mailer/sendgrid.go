package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var _ Mailer = (*SendgridMailer)(nil)

// SendgridMailer delivers messages through the SendGrid v3 API.
type SendgridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendgridMailer(apiKey, fromEmail, fromName string) (*SendgridMailer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, fmt.Errorf("from email is required")
	}

	return &SendgridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: strings.TrimSpace(fromEmail),
		fromName:  strings.TrimSpace(fromName),
	}, nil
}

func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("mailer is not initialized")
	}

	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return &SendError{
			Message: "provider request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return &SendError{Message: "provider returned empty response"}
	}

	if response.StatusCode >= http.StatusBadRequest {
		return &SendError{
			StatusCode: response.StatusCode,
			Message:    strings.TrimSpace(response.Body),
		}
	}

	return nil
}
