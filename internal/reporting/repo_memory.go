package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/outreach"
)

// MemoryRepo is a simple in-memory reporting repository for tests.
// It enforces tenant isolation on reads.
type MemoryRepo struct {
	mu sync.Mutex

	Emails []outreach.Email
	Deals  []deals.Deal
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListEmails(ctx context.Context, tenantID string, from, to time.Time, sequenceID string) ([]outreach.Email, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outreach.Email, 0)
	for _, e := range r.Emails {
		if e.TenantID != tenantID {
			continue
		}
		if sequenceID != "" && e.SequenceID != sequenceID {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryRepo) ListDeals(ctx context.Context, tenantID string) ([]deals.Deal, error) {
	if tenantID == "" {
		return nil, errors.New("tenant_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]deals.Deal, 0)
	for _, d := range r.Deals {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	return out, nil
}
