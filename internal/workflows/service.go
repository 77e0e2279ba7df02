package workflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("workflow not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Repository is the persistence contract for workflows and their executions.
// Every method is tenant-scoped.
type Repository interface {
	InsertWorkflow(ctx context.Context, w Workflow) error
	GetWorkflow(ctx context.Context, tenantID, id string) (Workflow, error)
	ListWorkflows(ctx context.Context, tenantID string) ([]Workflow, error)
	SetActive(ctx context.Context, tenantID, id string, active bool, at time.Time) error
	// ListActiveByTrigger returns active workflows with their steps sorted by step_order.
	ListActiveByTrigger(ctx context.Context, tenantID, triggerType string) ([]Workflow, error)

	InsertExecution(ctx context.Context, e Execution) error
	// LatestExecution returns ErrNotFound when the workflow never ran.
	LatestExecution(ctx context.Context, tenantID, workflowID string) (Execution, error)
	ListExecutions(ctx context.Context, tenantID, workflowID string, limit int) ([]Execution, error)

	TenantsWithTrigger(ctx context.Context, triggerType string) ([]string, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// Create validates and stores a workflow with its steps.
func (s *Service) Create(ctx context.Context, tenantID string, w Workflow) (Workflow, error) {
	if tenantID == "" {
		return Workflow{}, fmt.Errorf("%w: tenant_id required", ErrInvalidArgument)
	}
	w.Name = strings.TrimSpace(w.Name)
	w.TriggerType = strings.TrimSpace(w.TriggerType)
	if w.Name == "" {
		return Workflow{}, fmt.Errorf("%w: name required", ErrInvalidArgument)
	}
	if w.TriggerType == "" {
		return Workflow{}, fmt.Errorf("%w: trigger_type required", ErrInvalidArgument)
	}
	if w.TriggerType == TriggerTimeBased && len(w.TriggerConfig) > 0 {
		if _, err := delayDays(w.TriggerConfig); err != nil {
			return Workflow{}, err
		}
	}

	now := s.clock().UTC()
	w.ID = uuid.NewString()
	w.TenantID = tenantID
	w.CreatedAt = now
	w.UpdatedAt = now

	for i := range w.Steps {
		st := &w.Steps[i]
		if err := validateStep(*st); err != nil {
			return Workflow{}, fmt.Errorf("step %d: %w", i, err)
		}
		st.ID = uuid.NewString()
		st.WorkflowID = w.ID
	}
	sort.SliceStable(w.Steps, func(i, j int) bool { return w.Steps[i].StepOrder < w.Steps[j].StepOrder })

	if err := s.repo.InsertWorkflow(ctx, w); err != nil {
		return Workflow{}, err
	}
	return w, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Workflow, error) {
	if tenantID == "" || id == "" {
		return Workflow{}, ErrInvalidArgument
	}
	return s.repo.GetWorkflow(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Workflow, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListWorkflows(ctx, tenantID)
}

func (s *Service) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	if tenantID == "" || id == "" {
		return ErrInvalidArgument
	}
	return s.repo.SetActive(ctx, tenantID, id, active, s.clock().UTC())
}

func (s *Service) ListExecutions(ctx context.Context, tenantID, workflowID string, limit int) ([]Execution, error) {
	if tenantID == "" || workflowID == "" {
		return nil, ErrInvalidArgument
	}
	if _, err := s.repo.GetWorkflow(ctx, tenantID, workflowID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListExecutions(ctx, tenantID, workflowID, limit)
}

func validateStep(st Step) error {
	if !st.StepType.Valid() {
		return fmt.Errorf("%w: unknown step_type %q", ErrInvalidArgument, st.StepType)
	}
	for _, c := range st.Conditions {
		if c.Field == "" {
			return fmt.Errorf("%w: condition field required", ErrInvalidArgument)
		}
		switch c.Op {
		case "eq", "neq", "exists":
		default:
			return fmt.Errorf("%w: unknown condition op %q", ErrInvalidArgument, c.Op)
		}
	}

	var err error
	switch st.StepType {
	case StepUpdateDeal:
		var c updateDealConfig
		if err = decodeConfig(st.StepConfig, &c); err == nil && len(c.Fields) == 0 {
			err = errors.New("fields required")
		}
	case StepCreateTask:
		var c createTaskConfig
		if err = decodeConfig(st.StepConfig, &c); err == nil && strings.TrimSpace(c.Title) == "" {
			err = errors.New("title required")
		}
	case StepSendEmail:
		var c sendEmailConfig
		if err = decodeConfig(st.StepConfig, &c); err == nil && (c.Subject == "" || c.Content == "") {
			err = errors.New("subject and content required")
		}
	case StepWebhook:
		var c webhookConfig
		if err = decodeConfig(st.StepConfig, &c); err == nil &&
			!strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			err = errors.New("url must be http(s)")
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArgument, st.StepType, err)
	}
	return nil
}

func decodeConfig(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.New("step_config required")
	}
	return json.Unmarshal(raw, dst)
}

// delayDays reads trigger_config.delay_days, defaulting to 7.
func delayDays(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return defaultDelayDays, nil
	}
	var c timeBasedConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return 0, fmt.Errorf("%w: trigger_config: %v", ErrInvalidArgument, err)
	}
	if c.DelayDays == nil {
		return defaultDelayDays, nil
	}
	if *c.DelayDays <= 0 {
		return 0, fmt.Errorf("%w: trigger_config.delay_days must be > 0", ErrInvalidArgument)
	}
	return *c.DelayDays, nil
}
