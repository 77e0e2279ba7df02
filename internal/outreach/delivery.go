package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"emex-dashboard/internal/metrics"
)

var ErrSendFailed = errors.New("email send failed")

// Outgoing is one rendered email ready for delivery.
type Outgoing struct {
	TenantID string
	EmailID  string
	To       string
	ToName   string
	Subject  string
	HTML     string
}

// Sender is the delivery capability consumed by the sequence runner and the queue processor.
type Sender interface {
	Send(ctx context.Context, o Outgoing) (SendResult, error)
}

// Delivery wraps a Mailer with tracking instrumentation.
type Delivery struct {
	mailer    Mailer
	tracker   *Tracker
	fromEmail string
	fromName  string
	metrics   *metrics.Metrics
}

func NewDelivery(m Mailer, t *Tracker, fromEmail, fromName string) *Delivery {
	return &Delivery{mailer: m, tracker: t, fromEmail: fromEmail, fromName: fromName}
}

func (d *Delivery) WithMetrics(m *metrics.Metrics) *Delivery {
	d.metrics = m
	return d
}

// Send instruments the body when a tracker is configured and hands it to the provider.
// Provider failures are wrapped in ErrSendFailed.
func (d *Delivery) Send(ctx context.Context, o Outgoing) (SendResult, error) {
	if d.mailer == nil {
		return SendResult{}, fmt.Errorf("%w: mailer not configured", ErrSendFailed)
	}
	if strings.TrimSpace(o.To) == "" {
		return SendResult{}, fmt.Errorf("%w: recipient required", ErrSendFailed)
	}

	body := o.HTML
	if d.tracker != nil && o.EmailID != "" {
		body = d.tracker.Instrument(o.TenantID, o.EmailID, body)
	}

	var headers map[string]string
	if o.EmailID != "" {
		headers = map[string]string{"X-Emex-Email-Id": o.EmailID}
	}

	res, err := d.mailer.Send(ctx, Message{
		FromEmail: d.fromEmail,
		FromName:  d.fromName,
		To:        o.To,
		ToName:    o.ToName,
		Subject:   o.Subject,
		HTML:      body,
		Headers:   headers,
	})
	d.metrics.EmailSent(d.mailer.Name(), err == nil)
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: %s: %v", ErrSendFailed, d.mailer.Name(), err)
	}
	return res, nil
}
