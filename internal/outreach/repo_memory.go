package outreach

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memRow struct {
	Email
	lockedUntil time.Time
	lockToken   string
}

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]*memRow
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]*memRow{}} }

func (r *MemoryRepo) Insert(ctx context.Context, e Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[e.ID] = &memRow{Email: e}
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, id string) (Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return Email{}, ErrNotFound
	}
	return row.Email, nil
}

func (r *MemoryRepo) Transition(ctx context.Context, tenantID, id string, to Status, at time.Time) (Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return Email{}, ErrNotFound
	}
	if !CanTransition(row.Status, to) {
		return row.Email, ErrInvalidTransition
	}
	row.Status = to
	row.stamp(to, at)
	row.UpdatedAt = at
	return row.Email, nil
}

func (r *MemoryRepo) ClaimQueued(ctx context.Context, tenantID string, now time.Time, lease time.Duration, limit int, token string) ([]Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make([]*memRow, 0)
	for _, row := range r.rows {
		if row.TenantID != tenantID || row.Status != StatusQueued {
			continue
		}
		if !row.lockedUntil.IsZero() && row.lockedUntil.After(now) {
			continue
		}
		due = append(due, row)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]Email, 0, len(due))
	for _, row := range due {
		row.lockedUntil = now.Add(lease)
		row.lockToken = token
		out = append(out, row.Email)
	}
	return out, nil
}

func (r *MemoryRepo) claimed(tenantID, id, token string) (*memRow, error) {
	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, ErrNotFound
	}
	if row.lockToken != token || row.Status != StatusQueued {
		return nil, ErrClaimLost
	}
	return row, nil
}

func (r *MemoryRepo) MarkSent(ctx context.Context, tenantID, id, token, providerMessageID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.claimed(tenantID, id, token)
	if err != nil {
		return err
	}
	row.Status = StatusSent
	row.stamp(StatusSent, at)
	row.ProviderMessageID = providerMessageID
	row.Attempts++
	row.UpdatedAt = at
	row.lockedUntil = time.Time{}
	row.lockToken = ""
	return nil
}

func (r *MemoryRepo) ReleaseQueued(ctx context.Context, tenantID, id, token, reason string, retryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.claimed(tenantID, id, token)
	if err != nil {
		return err
	}
	row.Attempts++
	row.LastError = reason
	row.lockedUntil = retryAt
	row.lockToken = ""
	return nil
}

func (r *MemoryRepo) MarkBouncedClaimed(ctx context.Context, tenantID, id, token, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, err := r.claimed(tenantID, id, token)
	if err != nil {
		return err
	}
	row.Status = StatusBounced
	row.stamp(StatusBounced, at)
	row.Attempts++
	row.LastError = reason
	row.UpdatedAt = at
	row.lockedUntil = time.Time{}
	row.lockToken = ""
	return nil
}

func (r *MemoryRepo) ListEmails(ctx context.Context, tenantID string, from, to time.Time, sequenceID string) ([]Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Email, 0)
	for _, row := range r.rows {
		if row.TenantID != tenantID {
			continue
		}
		if row.CreatedAt.Before(from) || !row.CreatedAt.Before(to) {
			continue
		}
		if sequenceID != "" && row.SequenceID != sequenceID {
			continue
		}
		out = append(out, row.Email)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) TenantsWithQueued(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	for _, row := range r.rows {
		if row.Status == StatusQueued && (row.lockedUntil.IsZero() || !row.lockedUntil.After(now)) {
			seen[row.TenantID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// All returns every stored email for a tenant. Test helper.
func (r *MemoryRepo) All(tenantID string) []Email {
	out, _ := r.ListEmails(context.Background(), tenantID, time.Time{}, time.Unix(1<<40, 0), "")
	return out
}
