package reporting

import (
	"context"
	"errors"
	"time"

	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/outreach"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations must enforce tenant filtering.
type Repository interface {
	ListEmails(ctx context.Context, tenantID string, from, to time.Time, sequenceID string) ([]outreach.Email, error)
	ListDeals(ctx context.Context, tenantID string) ([]deals.Deal, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) OutreachSummary(ctx context.Context, req OutreachSummaryRequest) (OutreachSummary, error) {
	if req.TenantID == "" || !req.Range.valid() {
		return OutreachSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return OutreachSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListEmails(ctx, req.TenantID, req.Range.From, req.Range.To, req.SequenceID)
	if err != nil {
		return OutreachSummary{}, err
	}

	out := OutreachSummary{TenantID: req.TenantID, SequenceID: req.SequenceID}
	for _, e := range rows {
		out.Total++
		switch e.Status {
		case outreach.StatusQueued:
			out.Queued++
		case outreach.StatusSent:
			out.Sent++
		case outreach.StatusOpened:
			out.Opened++
		case outreach.StatusClicked:
			out.Clicked++
		case outreach.StatusReplied:
			out.Replied++
		case outreach.StatusBounced:
			out.Bounced++
		}
	}

	out.Delivered = out.Sent + out.Opened + out.Clicked + out.Replied
	if out.Delivered > 0 {
		d := float64(out.Delivered)
		out.OpenRate = float64(out.Opened+out.Clicked+out.Replied) / d
		out.ClickRate = float64(out.Clicked+out.Replied) / d
		out.ReplyRate = float64(out.Replied) / d
	}
	if attempted := out.Delivered + out.Bounced; attempted > 0 {
		out.BounceRate = float64(out.Bounced) / float64(attempted)
	}
	return out, nil
}

func (s *Service) PipelineSummary(ctx context.Context, req PipelineSummaryRequest) (PipelineSummary, error) {
	if req.TenantID == "" {
		return PipelineSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return PipelineSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListDeals(ctx, req.TenantID)
	if err != nil {
		return PipelineSummary{}, err
	}

	out := PipelineSummary{TenantID: req.TenantID, Stages: map[string]StageTotals{}}
	var won, lost int
	for _, d := range rows {
		out.TotalDeals++
		st := out.Stages[string(d.Stage)]
		st.Count++
		st.Value += d.Value
		out.Stages[string(d.Stage)] = st

		switch d.Stage {
		case deals.StageWon:
			won++
			out.WonValue += d.Value
		case deals.StageLost:
			lost++
		default:
			out.OpenValue += d.Value
		}
	}
	if closed := won + lost; closed > 0 {
		out.WinRate = float64(won) / float64(closed)
	}
	return out, nil
}
