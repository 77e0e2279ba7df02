package audit

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Repository is the persistence contract for activity events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, tenantID string, f Filter) ([]Event, error)
}

// Service records tenant activity. Callers treat logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) List(ctx context.Context, tenantID string, f Filter) ([]Event, error) {
	if tenantID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.List(ctx, tenantID, f)
}

// LogDealUpdated records a deal change made by a user or a workflow.
func (s *Service) LogDealUpdated(ctx context.Context, tenantID, dealID, workflowID, message string, changes map[string]any) error {
	return s.Append(ctx, Event{
		TenantID:   tenantID,
		Type:       EventTypeDealUpdated,
		DealID:     dealID,
		WorkflowID: workflowID,
		Message:    message,
		Metadata:   encode(changes),
	})
}

// LogTaskCreated records a task produced by a workflow step.
// Tasks only exist as activity entries.
func (s *Service) LogTaskCreated(ctx context.Context, tenantID, dealID, workflowID, title string, details map[string]any) error {
	return s.Append(ctx, Event{
		TenantID:   tenantID,
		Type:       EventTypeTaskCreated,
		DealID:     dealID,
		WorkflowID: workflowID,
		Message:    title,
		Metadata:   encode(details),
	})
}

func (s *Service) LogWorkflowExecuted(ctx context.Context, tenantID, workflowID, dealID, status string) error {
	return s.Append(ctx, Event{
		TenantID:   tenantID,
		Type:       EventTypeWorkflowExecuted,
		WorkflowID: workflowID,
		DealID:     dealID,
		Message:    "workflow " + status,
	})
}

func (s *Service) LogSequenceCompleted(ctx context.Context, tenantID, sequenceID, enrollmentID, leadID string) error {
	return s.Append(ctx, Event{
		TenantID:     tenantID,
		Type:         EventTypeSequenceCompleted,
		SequenceID:   sequenceID,
		EnrollmentID: enrollmentID,
		LeadID:       leadID,
		Message:      "sequence completed",
	})
}

// LogLeadsImported records a CSV import run with its counters.
func (s *Service) LogLeadsImported(ctx context.Context, tenantID, actorUserID, actorRole, ip string, counts map[string]any) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeLeadsImported,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     "leads imported",
		Metadata:    encode(counts),
	})
}

func encode(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
