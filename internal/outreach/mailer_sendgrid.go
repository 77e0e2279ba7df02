package outreach

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridMailer struct {
	client *sendgrid.Client
}

func NewSendGridMailer(apiKey string) *SendGridMailer {
	return &SendGridMailer{client: sendgrid.NewSendClient(apiKey)}
}

func (m *SendGridMailer) Name() string { return "sendgrid" }

func (m *SendGridMailer) Send(ctx context.Context, msg Message) (SendResult, error) {
	text := msg.Text
	if text == "" {
		text = plainText(msg.HTML)
	}
	from := mail.NewEmail(msg.FromName, msg.FromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	sg := mail.NewSingleEmail(from, msg.Subject, to, text, msg.HTML)
	for k, v := range msg.Headers {
		sg.SetHeader(k, v)
	}

	resp, err := m.client.SendWithContext(ctx, sg)
	if err != nil {
		return SendResult{}, fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return SendResult{}, fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	var id string
	if v := resp.Headers["X-Message-Id"]; len(v) > 0 {
		id = v[0]
	}
	return SendResult{MessageID: id}, nil
}
