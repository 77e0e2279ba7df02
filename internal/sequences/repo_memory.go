package sequences

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests. The claim runs under one
// mutex, which gives the same at-most-once guarantee as SKIP LOCKED.
type MemoryRepo struct {
	mu          sync.Mutex
	sequences   map[string]Sequence
	enrollments map[string]*memEnrollment
}

type memEnrollment struct {
	Enrollment
	lockedUntil time.Time
	lockToken   string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sequences: map[string]Sequence{}, enrollments: map[string]*memEnrollment{}}
}

func (r *MemoryRepo) InsertSequence(ctx context.Context, s Sequence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Steps = append([]Step(nil), s.Steps...)
	r.sequences[s.ID] = s
	return nil
}

func (r *MemoryRepo) GetSequence(ctx context.Context, tenantID, id string) (Sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[id]
	if !ok || s.TenantID != tenantID {
		return Sequence{}, ErrNotFound
	}
	s.Steps = append([]Step(nil), s.Steps...)
	return s, nil
}

func (r *MemoryRepo) ListSequences(ctx context.Context, tenantID string) ([]Sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sequence, 0)
	for _, s := range r.sequences {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) || (out[i].CreatedAt.Equal(out[j].CreatedAt) && out[i].ID < out[j].ID) })
	return out, nil
}

func (r *MemoryRepo) UpdateSteps(ctx context.Context, tenantID, id string, steps []Step, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sequences[id]
	if !ok || s.TenantID != tenantID {
		return ErrNotFound
	}
	s.Steps = append([]Step(nil), steps...)
	s.UpdatedAt = at
	r.sequences[id] = s
	return nil
}

// DeleteSequence simulates a sequence removed while enrollments still reference it.
func (r *MemoryRepo) DeleteSequence(tenantID, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sequences[id]; ok && s.TenantID == tenantID {
		delete(r.sequences, id)
	}
}

func (r *MemoryRepo) InsertEnrollments(ctx context.Context, es []Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range es {
		r.enrollments[e.ID] = &memEnrollment{Enrollment: e}
	}
	return nil
}

func (r *MemoryRepo) GetEnrollment(ctx context.Context, tenantID, id string) (Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok || e.TenantID != tenantID {
		return Enrollment{}, ErrNotFound
	}
	return e.Enrollment, nil
}

func (r *MemoryRepo) ListEnrollments(ctx context.Context, tenantID, sequenceID string, status EnrollmentStatus) ([]Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Enrollment, 0)
	for _, e := range r.enrollments {
		if e.TenantID != tenantID || e.SequenceID != sequenceID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e.Enrollment)
	}
	sortEnrollments(out)
	return out, nil
}

func (r *MemoryRepo) ClaimDue(ctx context.Context, tenantID string, now time.Time, lease time.Duration, limit int, token string) ([]Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]*memEnrollment, 0)
	for _, e := range r.enrollments {
		if r.due(e, now) && e.TenantID == tenantID {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextSendAt.Equal(*due[j].NextSendAt) {
			return due[i].NextSendAt.Before(*due[j].NextSendAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]Enrollment, 0, len(due))
	for _, e := range due {
		e.lockedUntil = now.Add(lease)
		e.lockToken = token
		out = append(out, e.Enrollment)
	}
	return out, nil
}

func (r *MemoryRepo) Advance(ctx context.Context, tenantID, id, token string, a Advance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.owned(tenantID, id, token)
	if !ok || e.CurrentStep != a.FromStep {
		return ErrClaimLost
	}
	e.CurrentStep = a.ToStep
	e.Status = a.Status
	e.NextSendAt = a.NextSendAt
	if a.LastSentAt != nil {
		e.LastSentAt = a.LastSentAt
	}
	e.Attempts = 0
	e.LastError = ""
	e.UpdatedAt = a.At
	e.lockedUntil = time.Time{}
	e.lockToken = ""
	return nil
}

func (r *MemoryRepo) Release(ctx context.Context, tenantID, id, token string, rel Release) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.owned(tenantID, id, token)
	if !ok {
		return ErrClaimLost
	}
	e.Status = rel.Status
	e.Attempts += rel.AttemptDelta
	if rel.LastError != "" {
		e.LastError = rel.LastError
	}
	e.UpdatedAt = rel.At
	e.lockedUntil = rel.RetryAt
	e.lockToken = ""
	return nil
}

func (r *MemoryRepo) DueTenants(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, e := range r.enrollments {
		if !r.due(e, now) {
			continue
		}
		if _, ok := seen[e.TenantID]; ok {
			continue
		}
		seen[e.TenantID] = struct{}{}
		out = append(out, e.TenantID)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepo) due(e *memEnrollment, now time.Time) bool {
	return e.Status == EnrollmentActive &&
		e.NextSendAt != nil && !e.NextSendAt.After(now) &&
		!e.lockedUntil.After(now)
}

func (r *MemoryRepo) owned(tenantID, id, token string) (*memEnrollment, bool) {
	e, ok := r.enrollments[id]
	if !ok || e.TenantID != tenantID || e.Status != EnrollmentActive || token == "" || e.lockToken != token {
		return nil, false
	}
	return e, true
}

func sortEnrollments(es []Enrollment) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.Before(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
}
