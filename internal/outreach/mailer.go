package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"emex-dashboard/internal/config"

	"github.com/google/uuid"
)

// Message is a provider-agnostic outbound email.
type Message struct {
	FromEmail string
	FromName  string
	To        string
	ToName    string
	Subject   string
	HTML      string
	Text      string

	// Headers are extra RFC 5322 headers; providers may ignore unknown ones.
	Headers map[string]string
}

type SendResult struct {
	MessageID string
}

// Mailer is the transactional email provider boundary.
// No provider SDK calls outside mailer implementations.
type Mailer interface {
	Name() string
	Send(ctx context.Context, m Message) (SendResult, error)
}

// NewMailer builds the provider selected by config.
func NewMailer(cfg config.MailConfig, log *slog.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "sendgrid":
		return NewSendGridMailer(cfg.SendGridAPIKey), nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword), nil
	case "log", "":
		return NewLogMailer(log), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// LogMailer writes messages to the logger instead of sending them.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Name() string { return "log" }

func (m *LogMailer) Send(ctx context.Context, msg Message) (SendResult, error) {
	id := "log-" + uuid.NewString()
	m.log.InfoContext(ctx, "email not sent (log provider)",
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", id,
	)
	return SendResult{MessageID: id}, nil
}

var tagRegex = regexp.MustCompile(`<[^>]*>`)

// plainText is a rough text alternative for HTML bodies.
func plainText(html string) string {
	s := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n").Replace(html)
	s = tagRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
