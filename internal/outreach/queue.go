package outreach

import (
	"context"
	"time"

	"emex-dashboard/internal/metrics"
	"emex-dashboard/pkg/logger"

	"github.com/google/uuid"
)

type QueueOutcome string

const (
	QueueSent    QueueOutcome = "sent"
	QueueRetry   QueueOutcome = "retry"
	QueueBounced QueueOutcome = "bounced"
	QueueLost    QueueOutcome = "lost"
)

type QueueResult struct {
	EmailID string       `json:"email_id"`
	Outcome QueueOutcome `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
}

type QueueOptions struct {
	Lease        time.Duration
	RetryBackoff time.Duration
	// MaxAttempts before a queued email is marked bounced.
	MaxAttempts int
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 15 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	return o
}

// QueueProcessor delivers emails enqueued by workflows.
type QueueProcessor struct {
	repo    Repository
	sender  Sender
	opts    QueueOptions
	metrics *metrics.Metrics
}

func NewQueueProcessor(repo Repository, sender Sender, opts QueueOptions, m *metrics.Metrics) *QueueProcessor {
	return &QueueProcessor{repo: repo, sender: sender, opts: opts.withDefaults(), metrics: m}
}

// ProcessQueued claims up to limit queued emails for one tenant and sends them.
// A failure on one email never aborts the batch.
func (p *QueueProcessor) ProcessQueued(ctx context.Context, tenantID string, now time.Time, limit int) ([]QueueResult, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	log := logger.From(ctx).With("tenant_id", tenantID, "sweep", "outreach_queue")
	token := uuid.NewString()

	claimed, err := p.repo.ClaimQueued(ctx, tenantID, now, p.opts.Lease, limit, token)
	if err != nil {
		return nil, err
	}

	results := make([]QueueResult, 0, len(claimed))
	for _, e := range claimed {
		r := p.deliver(ctx, e, token, now)
		if r.Outcome != QueueSent {
			log.Warn("queued email not sent", "email_id", e.ID, "outcome", r.Outcome, "reason", r.Reason)
		}
		p.metrics.QueueItem(string(r.Outcome))
		results = append(results, r)
	}
	log.Info("outreach queue processed", "claimed", len(claimed))
	return results, nil
}

func (p *QueueProcessor) deliver(ctx context.Context, e Email, token string, now time.Time) QueueResult {
	res, sendErr := p.sender.Send(ctx, Outgoing{
		TenantID: e.TenantID,
		EmailID:  e.ID,
		To:       e.ToEmail,
		ToName:   e.ToName,
		Subject:  e.Subject,
		HTML:     e.Body,
	})
	if sendErr == nil {
		if err := p.repo.MarkSent(ctx, e.TenantID, e.ID, token, res.MessageID, now); err != nil {
			return QueueResult{EmailID: e.ID, Outcome: QueueLost, Reason: err.Error()}
		}
		return QueueResult{EmailID: e.ID, Outcome: QueueSent}
	}

	reason := sendErr.Error()
	if e.Attempts+1 >= p.opts.MaxAttempts {
		if err := p.repo.MarkBouncedClaimed(ctx, e.TenantID, e.ID, token, reason, now); err != nil {
			return QueueResult{EmailID: e.ID, Outcome: QueueLost, Reason: err.Error()}
		}
		return QueueResult{EmailID: e.ID, Outcome: QueueBounced, Reason: reason}
	}
	if err := p.repo.ReleaseQueued(ctx, e.TenantID, e.ID, token, reason, now.Add(p.opts.RetryBackoff)); err != nil {
		return QueueResult{EmailID: e.ID, Outcome: QueueLost, Reason: err.Error()}
	}
	return QueueResult{EmailID: e.ID, Outcome: QueueRetry, Reason: reason}
}
