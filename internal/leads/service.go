package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("lead not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository is the persistence contract for leads.
// Every method is tenant-scoped; implementations must filter by tenant_id.
type Repository interface {
	Insert(ctx context.Context, l Lead) error
	Update(ctx context.Context, l Lead) error
	Get(ctx context.Context, tenantID, id string) (Lead, error)
	List(ctx context.Context, tenantID string, f ListFilter) ([]Lead, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Create normalizes contact fields, scores the lead and stores it.
func (s *Service) Create(ctx context.Context, tenantID string, l Lead) (Lead, error) {
	if tenantID == "" {
		return Lead{}, fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	l.TenantID = tenantID
	normalize(&l)
	if l.Email == "" && l.Phone == "" && l.FullName() == "" {
		return Lead{}, fmt.Errorf("%w: lead needs a name, email or phone", ErrInvalidArgument)
	}

	now := s.clock().UTC()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = now
	l.UpdatedAt = now
	applyScore(&l)

	if err := s.repo.Insert(ctx, l); err != nil {
		return Lead{}, err
	}
	return l, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Lead, error) {
	if tenantID == "" || id == "" {
		return Lead{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) ([]Lead, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.repo.List(ctx, tenantID, f)
}

// Update applies a patch and re-scores the lead.
func (s *Service) Update(ctx context.Context, tenantID, id string, p Patch) (Lead, error) {
	l, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Lead{}, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&l.FirstName, p.FirstName)
	set(&l.LastName, p.LastName)
	set(&l.Email, p.Email)
	set(&l.Phone, p.Phone)
	set(&l.Company, p.Company)
	set(&l.JobTitle, p.JobTitle)
	set(&l.Region, p.Region)
	normalize(&l)

	applyScore(&l)
	l.UpdatedAt = s.clock().UTC()

	if err := s.repo.Update(ctx, l); err != nil {
		return Lead{}, err
	}
	return l, nil
}

// Rescore recomputes and persists the derived scoring fields.
func (s *Service) Rescore(ctx context.Context, tenantID, id string) (Lead, error) {
	l, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Lead{}, err
	}
	applyScore(&l)
	l.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, l); err != nil {
		return Lead{}, err
	}
	return l, nil
}

func applyScore(l *Lead) {
	l.Score = Score(*l)
	l.IsOutreachReady = IsOutreachReady(l.Score)
	l.EmailStatus = ClassifyEmail(l.Email)
}

func normalize(l *Lead) {
	l.FirstName = strings.TrimSpace(l.FirstName)
	l.LastName = strings.TrimSpace(l.LastName)
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	l.Company = strings.TrimSpace(l.Company)
	l.JobTitle = strings.TrimSpace(l.JobTitle)
	l.Region = strings.ToUpper(strings.TrimSpace(l.Region))
	l.Phone = normalizePhone(l.Phone, l.Region)
}
