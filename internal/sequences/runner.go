package sequences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emex-dashboard/internal/leads"
	"emex-dashboard/internal/metrics"
	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/templates"
	"emex-dashboard/pkg/logger"

	"github.com/google/uuid"
)

// EmailRecorder persists a delivered email so tracking events can find it.
type EmailRecorder interface {
	RecordSent(ctx context.Context, e outreach.Email, sentAt time.Time) (outreach.Email, error)
}

// CompletionLogger receives sequence_completed activity. Failures are only logged.
type CompletionLogger interface {
	LogSequenceCompleted(ctx context.Context, tenantID, sequenceID, enrollmentID, leadID string) error
}

type RunnerOptions struct {
	// Lease is how long a claimed enrollment stays invisible to other sweeps.
	Lease time.Duration
	// RetryBackoff delays the next attempt after a failed or skipped enrollment.
	RetryBackoff time.Duration
	// MaxAttempts marks an enrollment failed after that many failed sends of one step.
	// Zero retries forever.
	MaxAttempts int
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.Lease <= 0 {
		o.Lease = 5 * time.Minute
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 15 * time.Minute
	}
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	return o
}

// Runner sends the due step of each active enrollment.
type Runner struct {
	repo     Repository
	leads    LeadSource
	sender   outreach.Sender
	emails   EmailRecorder
	activity CompletionLogger
	metrics  *metrics.Metrics
	opts     RunnerOptions
}

func NewRunner(repo Repository, leadSource LeadSource, sender outreach.Sender, emails EmailRecorder, opts RunnerOptions) *Runner {
	return &Runner{repo: repo, leads: leadSource, sender: sender, emails: emails, opts: opts.withDefaults()}
}

func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

func (r *Runner) WithActivity(a CompletionLogger) *Runner {
	r.activity = a
	return r
}

// RunDue claims up to limit due enrollments for one tenant and processes each.
// A failure on one enrollment never aborts the batch. The returned error is only
// set when the claim itself fails.
func (r *Runner) RunDue(ctx context.Context, tenantID string, now time.Time, limit int) ([]Result, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()
	log := logger.From(ctx).With("tenant_id", tenantID, "sweep", "sequences")
	token := uuid.NewString()

	claimed, err := r.repo.ClaimDue(ctx, tenantID, now, r.opts.Lease, limit, token)
	if err != nil {
		return nil, err
	}

	// Sequences are read once per sweep.
	seqs := map[string]*Sequence{}
	results := make([]Result, 0, len(claimed))
	for _, e := range claimed {
		seq, ok := seqs[e.SequenceID]
		if !ok {
			s, err := r.repo.GetSequence(ctx, tenantID, e.SequenceID)
			switch {
			case err == nil:
				seq = &s
			case errors.Is(err, ErrNotFound):
				seq = nil
			default:
				log.Error("sequence lookup failed", "sequence_id", e.SequenceID, "error", err)
				res := r.release(ctx, e, token, now, OutcomeSkipped, err.Error(), 0)
				r.metrics.SequenceItem(string(res.Outcome))
				results = append(results, res)
				continue
			}
			seqs[e.SequenceID] = seq
		}

		res := r.process(ctx, e, seq, token, now)
		switch res.Outcome {
		case OutcomeSent, OutcomeCompleted:
			log.Debug("enrollment processed", "enrollment_id", e.ID, "outcome", res.Outcome, "step", res.StepIndex)
		default:
			log.Warn("enrollment not sent", "enrollment_id", e.ID, "outcome", res.Outcome, "reason", res.Reason)
		}
		r.metrics.SequenceItem(string(res.Outcome))
		results = append(results, res)
	}

	sum := Summarize(results)
	log.Info("sequence sweep finished",
		"processed", sum.Processed, "sent", sum.Sent, "completed", sum.Completed,
		"skipped", sum.Skipped, "failed", sum.Failed)
	return results, nil
}

func (r *Runner) process(ctx context.Context, e Enrollment, seq *Sequence, token string, now time.Time) Result {
	if seq == nil {
		return r.release(ctx, e, token, now, OutcomeSkipped, "sequence not found", 0)
	}

	if e.CurrentStep >= len(seq.Steps) {
		err := r.repo.Advance(ctx, e.TenantID, e.ID, token, Advance{
			FromStep: e.CurrentStep,
			ToStep:   e.CurrentStep,
			Status:   EnrollmentCompleted,
			At:       now,
		})
		if err != nil {
			return Result{EnrollmentID: e.ID, LeadID: e.LeadID, StepIndex: e.CurrentStep, Outcome: OutcomeFailed, Reason: err.Error()}
		}
		r.logCompleted(ctx, e)
		return Result{EnrollmentID: e.ID, LeadID: e.LeadID, StepIndex: e.CurrentStep, Outcome: OutcomeCompleted}
	}

	lead, err := r.leads.Get(ctx, e.TenantID, e.LeadID)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, leads.ErrNotFound) {
			reason = "lead not found"
		}
		return r.release(ctx, e, token, now, OutcomeFailed, reason, 1)
	}

	step := seq.Steps[e.CurrentStep]
	vars := templates.LeadVariables(lead)
	subject := templates.Render(step.Subject, vars)
	body := templates.Render(step.Content, vars)
	emailID := uuid.NewString()

	sent, err := r.sender.Send(ctx, outreach.Outgoing{
		TenantID: e.TenantID,
		EmailID:  emailID,
		To:       lead.Email,
		ToName:   lead.FullName(),
		Subject:  subject,
		HTML:     body,
	})
	if err != nil {
		return r.release(ctx, e, token, now, OutcomeFailed, err.Error(), 1)
	}

	if _, err := r.emails.RecordSent(ctx, outreach.Email{
		ID:                emailID,
		TenantID:          e.TenantID,
		SequenceID:        e.SequenceID,
		EnrollmentID:      e.ID,
		StepIndex:         e.CurrentStep,
		LeadID:            e.LeadID,
		ToEmail:           lead.Email,
		ToName:            lead.FullName(),
		Subject:           subject,
		Body:              body,
		ProviderMessageID: sent.MessageID,
	}, now); err != nil {
		// The email is out; advancing anyway keeps it from going twice.
		logger.From(ctx).Error("record sent email failed",
			"tenant_id", e.TenantID, "enrollment_id", e.ID, "email_id", emailID, "error", err)
	}

	next := e.CurrentStep + 1
	adv := Advance{
		FromStep:   e.CurrentStep,
		ToStep:     next,
		Status:     EnrollmentActive,
		LastSentAt: &now,
		At:         now,
	}
	if next < len(seq.Steps) {
		at := now.AddDate(0, 0, seq.Steps[next].DelayDays)
		adv.NextSendAt = &at
	} else {
		adv.Status = EnrollmentCompleted
	}

	if err := r.repo.Advance(ctx, e.TenantID, e.ID, token, adv); err != nil {
		return Result{EnrollmentID: e.ID, LeadID: e.LeadID, StepIndex: e.CurrentStep, Outcome: OutcomeFailed,
			Reason: fmt.Sprintf("sent but not advanced: %v", err), EmailID: emailID}
	}
	if adv.Status == EnrollmentCompleted {
		r.logCompleted(ctx, e)
	}
	return Result{EnrollmentID: e.ID, LeadID: e.LeadID, StepIndex: e.CurrentStep, Outcome: OutcomeSent, EmailID: emailID}
}

// release hands the enrollment back untouched apart from the attempt counters.
// The row stays hidden until now+RetryBackoff so a broken enrollment is not retried every sweep.
func (r *Runner) release(ctx context.Context, e Enrollment, token string, now time.Time, outcome Outcome, reason string, attemptDelta int) Result {
	rel := Release{
		Status:       EnrollmentActive,
		AttemptDelta: attemptDelta,
		RetryAt:      now.Add(r.opts.RetryBackoff),
		At:           now,
	}
	if attemptDelta > 0 {
		rel.LastError = reason
		if r.opts.MaxAttempts > 0 && e.Attempts+attemptDelta >= r.opts.MaxAttempts {
			rel.Status = EnrollmentFailed
			rel.RetryAt = time.Time{}
		}
	}
	if err := r.repo.Release(ctx, e.TenantID, e.ID, token, rel); err != nil {
		reason = fmt.Sprintf("%s (release: %v)", reason, err)
	}
	return Result{EnrollmentID: e.ID, LeadID: e.LeadID, StepIndex: e.CurrentStep, Outcome: outcome, Reason: reason}
}

func (r *Runner) logCompleted(ctx context.Context, e Enrollment) {
	if r.activity == nil {
		return
	}
	if err := r.activity.LogSequenceCompleted(ctx, e.TenantID, e.SequenceID, e.ID, e.LeadID); err != nil {
		logger.From(ctx).Warn("activity log failed", "enrollment_id", e.ID, "error", err)
	}
}
