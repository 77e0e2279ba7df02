package deals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"emex-dashboard/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("deal not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

type Repository interface {
	Insert(ctx context.Context, d Deal) error
	Get(ctx context.Context, tenantID, id string) (Deal, error)
	Update(ctx context.Context, d Deal) error
	List(ctx context.Context, tenantID string, stage Stage) ([]Deal, error)
}

// EventSink receives deal events, typically the workflow executor.
// It runs synchronously; its failures never fail the deal operation.
type EventSink interface {
	DealEvent(ctx context.Context, e Event) error
}

type Service struct {
	repo  Repository
	sink  EventSink
	clock func() time.Time
}

func NewService(repo Repository, sink EventSink) *Service {
	return &Service{repo: repo, sink: sink, clock: time.Now}
}

// SetSink wires the event sink after construction; the executor depends on the
// service and the service emits into the executor.
func (s *Service) SetSink(sink EventSink) { s.sink = sink }

func (s *Service) Create(ctx context.Context, tenantID string, d Deal) (Deal, error) {
	if tenantID == "" {
		return Deal{}, fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return Deal{}, fmt.Errorf("%w: title required", ErrInvalidArgument)
	}
	if d.Stage == "" {
		d.Stage = StageLead
	}
	if !d.Stage.Valid() {
		return Deal{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidArgument, d.Stage)
	}
	if d.Value < 0 {
		return Deal{}, fmt.Errorf("%w: value must be >= 0", ErrInvalidArgument)
	}

	now := s.clock().UTC()
	d.ID = uuid.NewString()
	d.TenantID = tenantID
	d.CreatedAt = now
	d.UpdatedAt = now
	if err := s.repo.Insert(ctx, d); err != nil {
		return Deal{}, err
	}
	s.emit(ctx, Event{Type: EventDealCreated, TenantID: tenantID, Deal: d})
	return d, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Deal, error) {
	if tenantID == "" || id == "" {
		return Deal{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, stage Stage) ([]Deal, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	if stage != "" && !stage.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidArgument, stage)
	}
	return s.repo.List(ctx, tenantID, stage)
}

// UpdateStage moves a deal and emits deal_stage_changed. Setting the current
// stage again is a no-op without an event.
func (s *Service) UpdateStage(ctx context.Context, tenantID, id string, stage Stage) (Deal, error) {
	if !stage.Valid() {
		return Deal{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidArgument, stage)
	}
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Deal{}, err
	}
	if d.Stage == stage {
		return d, nil
	}
	from := d.Stage
	d.Stage = stage
	d.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, d); err != nil {
		return Deal{}, err
	}
	s.emit(ctx, Event{
		Type:     EventDealStageChanged,
		TenantID: tenantID,
		Deal:     d,
		Data:     map[string]any{"from_stage": string(from), "to_stage": string(stage)},
	})
	return d, nil
}

// Patch applies ApplyPatch and persists. It does not emit events, so a workflow
// updating a deal cannot retrigger itself.
func (s *Service) Patch(ctx context.Context, tenantID, id string, patch map[string]any) (Deal, []string, error) {
	if len(patch) == 0 {
		return Deal{}, nil, fmt.Errorf("%w: empty patch", ErrInvalidArgument)
	}
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return Deal{}, nil, err
	}
	d, applied, err := ApplyPatch(d, patch)
	if err != nil {
		return Deal{}, nil, err
	}
	d.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, d); err != nil {
		return Deal{}, nil, err
	}
	sort.Strings(applied)
	return d, applied, nil
}

func (s *Service) emit(ctx context.Context, e Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.DealEvent(ctx, e); err != nil {
		logger.From(ctx).Warn("deal event handling failed", "tenant_id", e.TenantID, "deal_id", e.Deal.ID, "event", e.Type, "error", err)
	}
}
