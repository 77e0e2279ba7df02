package sequences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"emex-dashboard/internal/leads"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("sequence not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClaimLost       = errors.New("enrollment claim lost")
)

// Repository is the persistence contract for sequences and enrollments.
// Every method is tenant-scoped.
type Repository interface {
	InsertSequence(ctx context.Context, s Sequence) error
	GetSequence(ctx context.Context, tenantID, id string) (Sequence, error)
	ListSequences(ctx context.Context, tenantID string) ([]Sequence, error)
	UpdateSteps(ctx context.Context, tenantID, id string, steps []Step, at time.Time) error

	InsertEnrollments(ctx context.Context, es []Enrollment) error
	GetEnrollment(ctx context.Context, tenantID, id string) (Enrollment, error)
	ListEnrollments(ctx context.Context, tenantID, sequenceID string, status EnrollmentStatus) ([]Enrollment, error)

	// ClaimDue atomically leases up to limit active enrollments with
	// next_send_at <= now whose lease is free, stamping them with token.
	// Two concurrent callers never receive the same enrollment.
	ClaimDue(ctx context.Context, tenantID string, now time.Time, lease time.Duration, limit int, token string) ([]Enrollment, error)
	// Advance returns ErrClaimLost when token no longer owns the row or the step moved.
	Advance(ctx context.Context, tenantID, id, token string, a Advance) error
	Release(ctx context.Context, tenantID, id, token string, r Release) error

	DueTenants(ctx context.Context, now time.Time) ([]string, error)
}

// LeadSource resolves leads within a tenant.
type LeadSource interface {
	Get(ctx context.Context, tenantID, id string) (leads.Lead, error)
}

type Service struct {
	repo  Repository
	leads LeadSource
	clock func() time.Time
}

func NewService(repo Repository, leadSource LeadSource) *Service {
	return &Service{repo: repo, leads: leadSource, clock: time.Now}
}

func (s *Service) CreateSequence(ctx context.Context, tenantID, name string, steps []Step) (Sequence, error) {
	if tenantID == "" {
		return Sequence{}, fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Sequence{}, fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	if err := validateSteps(steps); err != nil {
		return Sequence{}, err
	}
	now := s.clock().UTC()
	seq := Sequence{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		Steps:     steps,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertSequence(ctx, seq); err != nil {
		return Sequence{}, err
	}
	return seq, nil
}

func (s *Service) GetSequence(ctx context.Context, tenantID, id string) (Sequence, error) {
	if tenantID == "" || id == "" {
		return Sequence{}, ErrInvalidArgument
	}
	return s.repo.GetSequence(ctx, tenantID, id)
}

func (s *Service) ListSequences(ctx context.Context, tenantID string) ([]Sequence, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListSequences(ctx, tenantID)
}

// UpdateSteps replaces the steps of a sequence. In-flight enrollments pick up the
// new steps on their next sweep; an enrollment whose index is now past the end completes.
func (s *Service) UpdateSteps(ctx context.Context, tenantID, id string, steps []Step) (Sequence, error) {
	if err := validateSteps(steps); err != nil {
		return Sequence{}, err
	}
	seq, err := s.GetSequence(ctx, tenantID, id)
	if err != nil {
		return Sequence{}, err
	}
	now := s.clock().UTC()
	if err := s.repo.UpdateSteps(ctx, tenantID, id, steps, now); err != nil {
		return Sequence{}, err
	}
	seq.Steps = steps
	seq.UpdatedAt = now
	return seq, nil
}

// Enroll creates one active enrollment per lead. Leads already actively enrolled
// in the sequence are skipped. The whole call fails if the sequence or any lead
// is not visible to the tenant.
func (s *Service) Enroll(ctx context.Context, tenantID, sequenceID string, leadIDs []string, startImmediately bool) ([]Enrollment, error) {
	if tenantID == "" || sequenceID == "" {
		return nil, fmt.Errorf("%w: tenant_id and sequence_id required", ErrInvalidArgument)
	}
	leadIDs = dedupe(leadIDs)
	if len(leadIDs) == 0 {
		return nil, fmt.Errorf("%w: lead_ids required", ErrInvalidArgument)
	}

	seq, err := s.repo.GetSequence(ctx, tenantID, sequenceID)
	if err != nil {
		return nil, err
	}
	if len(seq.Steps) == 0 {
		return nil, fmt.Errorf("%w: sequence has no steps", ErrInvalidArgument)
	}

	if s.leads != nil {
		for _, id := range leadIDs {
			if _, err := s.leads.Get(ctx, tenantID, id); err != nil {
				if errors.Is(err, leads.ErrNotFound) {
					return nil, fmt.Errorf("lead %s: %w", id, leads.ErrNotFound)
				}
				return nil, err
			}
		}
	}

	active, err := s.repo.ListEnrollments(ctx, tenantID, sequenceID, EnrollmentActive)
	if err != nil {
		return nil, err
	}
	enrolled := make(map[string]struct{}, len(active))
	for _, e := range active {
		enrolled[e.LeadID] = struct{}{}
	}

	now := s.clock().UTC()
	next := FirstSendAt(now, seq.Steps[0], startImmediately)

	out := make([]Enrollment, 0, len(leadIDs))
	for _, leadID := range leadIDs {
		if _, ok := enrolled[leadID]; ok {
			continue
		}
		at := next
		out = append(out, Enrollment{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			SequenceID:  sequenceID,
			LeadID:      leadID,
			CurrentStep: 0,
			Status:      EnrollmentActive,
			NextSendAt:  &at,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := s.repo.InsertEnrollments(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetEnrollment(ctx context.Context, tenantID, id string) (Enrollment, error) {
	if tenantID == "" || id == "" {
		return Enrollment{}, ErrInvalidArgument
	}
	return s.repo.GetEnrollment(ctx, tenantID, id)
}

func (s *Service) ListEnrollments(ctx context.Context, tenantID, sequenceID string, status EnrollmentStatus) ([]Enrollment, error) {
	if tenantID == "" || sequenceID == "" {
		return nil, ErrInvalidArgument
	}
	if _, err := s.repo.GetSequence(ctx, tenantID, sequenceID); err != nil {
		return nil, err
	}
	return s.repo.ListEnrollments(ctx, tenantID, sequenceID, status)
}

// FirstSendAt is now when starting immediately or when step 0 has no delay.
func FirstSendAt(now time.Time, first Step, startImmediately bool) time.Time {
	if startImmediately || first.DelayDays == 0 {
		return now
	}
	return now.AddDate(0, 0, first.DelayDays)
}

func validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: at least one step required", ErrInvalidArgument)
	}
	for i, st := range steps {
		if strings.TrimSpace(st.Subject) == "" {
			return fmt.Errorf("%w: step %d: subject required", ErrInvalidArgument, i)
		}
		if strings.TrimSpace(st.Content) == "" {
			return fmt.Errorf("%w: step %d: content required", ErrInvalidArgument, i)
		}
		if st.DelayDays < 0 {
			return fmt.Errorf("%w: step %d: delayDays must be >= 0", ErrInvalidArgument, i)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
