package outreach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

type SMTPMailer struct {
	dialer *gomail.Dialer
	host   string
}

func NewSMTPMailer(host string, port int, user, password string) *SMTPMailer {
	return &SMTPMailer{dialer: gomail.NewDialer(host, port, user, password), host: host}
}

func (m *SMTPMailer) Name() string { return "smtp" }

// Send dials per message. gomail has no context support, so cancellation is
// only honored before the dial starts.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.host)

	gm := m.build(msg, id)
	if err := m.dialer.DialAndSend(gm); err != nil {
		return SendResult{}, fmt.Errorf("smtp send: %w", err)
	}
	return SendResult{MessageID: id}, nil
}

func (m *SMTPMailer) build(msg Message, messageID string) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	if msg.ToName != "" {
		gm.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		gm.SetHeader("To", msg.To)
	}
	gm.SetHeader("Subject", msg.Subject)
	gm.SetHeader("Message-ID", messageID)
	for k, v := range msg.Headers {
		gm.SetHeader(k, v)
	}
	text := msg.Text
	if text == "" {
		text = plainText(msg.HTML)
	}
	gm.SetBody("text/plain", text)
	gm.AddAlternative("text/html", msg.HTML)
	return gm
}
