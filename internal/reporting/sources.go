package reporting

import (
	"context"
	"time"

	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/outreach"
)

type EmailLister interface {
	ListEmails(ctx context.Context, tenantID string, from, to time.Time, sequenceID string) ([]outreach.Email, error)
}

type DealLister interface {
	List(ctx context.Context, tenantID string, stage deals.Stage) ([]deals.Deal, error)
}

// Sources reads straight from the outreach and deal repositories.
type Sources struct {
	Emails EmailLister
	Deals  DealLister
}

func (s Sources) ListEmails(ctx context.Context, tenantID string, from, to time.Time, sequenceID string) ([]outreach.Email, error) {
	return s.Emails.ListEmails(ctx, tenantID, from, to, sequenceID)
}

func (s Sources) ListDeals(ctx context.Context, tenantID string) ([]deals.Deal, error) {
	return s.Deals.List(ctx, tenantID, "")
}
