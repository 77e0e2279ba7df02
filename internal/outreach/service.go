package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("outreach email not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrClaimLost         = errors.New("queue claim lost")
)

// Repository is the persistence contract for outreach emails.
// All methods are tenant-scoped.
type Repository interface {
	Insert(ctx context.Context, e Email) error
	Get(ctx context.Context, tenantID, id string) (Email, error)

	// Transition moves an email forward. It returns ErrInvalidTransition when
	// CanTransition rejects the move, leaving the row untouched.
	Transition(ctx context.Context, tenantID, id string, to Status, at time.Time) (Email, error)

	// ClaimQueued leases up to limit queued rows whose lease is free at now.
	ClaimQueued(ctx context.Context, tenantID string, now time.Time, lease time.Duration, limit int, token string) ([]Email, error)
	// MarkSent finishes a claimed row. Returns ErrClaimLost if token no longer owns it.
	MarkSent(ctx context.Context, tenantID, id, token, providerMessageID string, at time.Time) error
	// ReleaseQueued records a failed attempt and frees the row again at retryAt.
	ReleaseQueued(ctx context.Context, tenantID, id, token, reason string, retryAt time.Time) error
	// MarkBouncedClaimed gives up on a claimed row.
	MarkBouncedClaimed(ctx context.Context, tenantID, id, token, reason string, at time.Time) error

	ListEmails(ctx context.Context, tenantID string, from, to time.Time, sequenceID string) ([]Email, error)
	TenantsWithQueued(ctx context.Context, now time.Time) ([]string, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Enqueue stores an email for the queue processor.
func (s *Service) Enqueue(ctx context.Context, e Email) (Email, error) {
	if err := validateNew(e); err != nil {
		return Email{}, err
	}
	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Status = StatusQueued
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := s.repo.Insert(ctx, e); err != nil {
		return Email{}, err
	}
	return e, nil
}

// RecordSent stores an email that was already delivered by the caller.
func (s *Service) RecordSent(ctx context.Context, e Email, sentAt time.Time) (Email, error) {
	if err := validateNew(e); err != nil {
		return Email{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	sentAt = sentAt.UTC()
	e.Status = StatusSent
	e.stamp(StatusSent, sentAt)
	e.CreatedAt = sentAt
	e.UpdatedAt = sentAt
	if err := s.repo.Insert(ctx, e); err != nil {
		return Email{}, err
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Email, error) {
	if tenantID == "" || id == "" {
		return Email{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, tenantID, id)
}

// RecordOpen and RecordClick are idempotent: a repeat or late event is ignored.
func (s *Service) RecordOpen(ctx context.Context, tenantID, id string) error {
	return s.advance(ctx, tenantID, id, StatusOpened)
}

func (s *Service) RecordClick(ctx context.Context, tenantID, id string) error {
	return s.advance(ctx, tenantID, id, StatusClicked)
}

func (s *Service) MarkReplied(ctx context.Context, tenantID, id string) error {
	return s.advance(ctx, tenantID, id, StatusReplied)
}

// MarkBounced is strict: bouncing an engaged email is reported to the caller.
func (s *Service) MarkBounced(ctx context.Context, tenantID, id string) (Email, error) {
	if tenantID == "" || id == "" {
		return Email{}, ErrInvalidArgument
	}
	return s.repo.Transition(ctx, tenantID, id, StatusBounced, s.clock().UTC())
}

func (s *Service) advance(ctx context.Context, tenantID, id string, to Status) error {
	if tenantID == "" || id == "" {
		return ErrInvalidArgument
	}
	_, err := s.repo.Transition(ctx, tenantID, id, to, s.clock().UTC())
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

func validateNew(e Email) error {
	if e.TenantID == "" {
		return fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	if strings.TrimSpace(e.ToEmail) == "" {
		return fmt.Errorf("%w: to_email required", ErrInvalidArgument)
	}
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("%w: subject required", ErrInvalidArgument)
	}
	return nil
}
