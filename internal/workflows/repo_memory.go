package workflows

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu         sync.Mutex
	workflows  map[string]Workflow
	executions []Execution
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{workflows: map[string]Workflow{}} }

func (r *MemoryRepo) InsertWorkflow(ctx context.Context, w Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.Steps = append([]Step(nil), w.Steps...)
	r.workflows[w.ID] = w
	return nil
}

func (r *MemoryRepo) GetWorkflow(ctx context.Context, tenantID, id string) (Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[id]
	if !ok || w.TenantID != tenantID {
		return Workflow{}, ErrNotFound
	}
	return copyWorkflow(w), nil
}

func (r *MemoryRepo) ListWorkflows(ctx context.Context, tenantID string) ([]Workflow, error) {
	return r.list(tenantID, func(Workflow) bool { return true }), nil
}

func (r *MemoryRepo) SetActive(ctx context.Context, tenantID, id string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workflows[id]
	if !ok || w.TenantID != tenantID {
		return ErrNotFound
	}
	w.IsActive = active
	w.UpdatedAt = at
	r.workflows[id] = w
	return nil
}

func (r *MemoryRepo) ListActiveByTrigger(ctx context.Context, tenantID, triggerType string) ([]Workflow, error) {
	return r.list(tenantID, func(w Workflow) bool { return w.IsActive && w.TriggerType == triggerType }), nil
}

func (r *MemoryRepo) InsertExecution(ctx context.Context, e Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions = append(r.executions, e)
	return nil
}

func (r *MemoryRepo) LatestExecution(ctx context.Context, tenantID, workflowID string) (Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Execution
	for i := range r.executions {
		e := &r.executions[i]
		if e.TenantID != tenantID || e.WorkflowID != workflowID {
			continue
		}
		if latest == nil || e.ExecutedAt.After(latest.ExecutedAt) {
			latest = e
		}
	}
	if latest == nil {
		return Execution{}, ErrNotFound
	}
	return *latest, nil
}

func (r *MemoryRepo) ListExecutions(ctx context.Context, tenantID, workflowID string, limit int) ([]Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Execution, 0)
	for _, e := range r.executions {
		if e.TenantID == tenantID && e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) TenantsWithTrigger(ctx context.Context, triggerType string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, w := range r.workflows {
		if !w.IsActive || w.TriggerType != triggerType {
			continue
		}
		if _, ok := seen[w.TenantID]; !ok {
			seen[w.TenantID] = struct{}{}
			out = append(out, w.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Executions returns every recorded execution of the tenant.
func (r *MemoryRepo) Executions(tenantID string) []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Execution, 0)
	for _, e := range r.executions {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

func (r *MemoryRepo) list(tenantID string, keep func(Workflow) bool) []Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Workflow, 0)
	for _, w := range r.workflows {
		if w.TenantID == tenantID && keep(w) {
			out = append(out, copyWorkflow(w))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyWorkflow(w Workflow) Workflow {
	w.Steps = append([]Step(nil), w.Steps...)
	sort.SliceStable(w.Steps, func(i, j int) bool { return w.Steps[i].StepOrder < w.Steps[j].StepOrder })
	return w
}
