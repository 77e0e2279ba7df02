package deals

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	deals map[string]Deal
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{deals: map[string]Deal{}} }

func (r *MemoryRepo) Insert(ctx context.Context, d Deal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deals[d.ID] = clone(d)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, id string) (Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deals[id]
	if !ok || d.TenantID != tenantID {
		return Deal{}, ErrNotFound
	}
	return clone(d), nil
}

func (r *MemoryRepo) Update(ctx context.Context, d Deal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.deals[d.ID]
	if !ok || cur.TenantID != d.TenantID {
		return ErrNotFound
	}
	r.deals[d.ID] = clone(d)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, tenantID string, stage Stage) ([]Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Deal, 0)
	for _, d := range r.deals {
		if d.TenantID != tenantID || (stage != "" && d.Stage != stage) {
			continue
		}
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(d Deal) Deal {
	if d.Properties != nil {
		props := make(map[string]any, len(d.Properties))
		for k, v := range d.Properties {
			props[k] = v
		}
		d.Properties = props
	}
	return d
}
