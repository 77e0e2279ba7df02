package workflows

import (
	"time"

	"emex-dashboard/internal/leads"

	json "github.com/goccy/go-json"
)

// Trigger types with built-in producers. Any other non-empty string can be
// fired through the trigger endpoint.
const (
	TriggerDealCreated      = "deal_created"
	TriggerDealStageChanged = "deal_stage_changed"
	TriggerLeadCreated      = "lead_created"
	TriggerTimeBased        = "time_based"
)

type StepType string

const (
	StepUpdateDeal StepType = "update_deal"
	StepCreateTask StepType = "create_task"
	StepSendEmail  StepType = "send_email"
	StepWebhook    StepType = "webhook"
	StepWait       StepType = "wait"
)

func (t StepType) Valid() bool {
	switch t {
	case StepUpdateDeal, StepCreateTask, StepSendEmail, StepWebhook, StepWait:
		return true
	}
	return false
}

type Workflow struct {
	ID          string `json:"id" db:"id"`
	TenantID    string `json:"tenant_id" db:"tenant_id"`
	Name        string `json:"name" db:"name"`
	TriggerType string `json:"trigger_type" db:"trigger_type"`
	// TriggerConfig is trigger specific; time_based reads {"delay_days": n}.
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty" db:"trigger_config"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	Steps         []Step          `json:"steps" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Step struct {
	ID         string          `json:"id" db:"id"`
	WorkflowID string          `json:"workflow_id" db:"workflow_id"`
	StepOrder  int             `json:"step_order" db:"step_order"`
	StepType   StepType        `json:"step_type" db:"step_type"`
	StepConfig json.RawMessage `json:"step_config,omitempty" db:"step_config"`
	Conditions []Condition     `json:"conditions,omitempty" db:"conditions"`
	IsActive   bool            `json:"is_active" db:"is_active"`
}

// Condition gates a step on the flattened trigger context.
// Op is eq, neq or exists.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
}

const (
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Execution is the audit row written once per workflow run.
type Execution struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	WorkflowID  string    `json:"workflow_id" db:"workflow_id"`
	TriggerType string    `json:"trigger_type" db:"trigger_type"`
	DealID      string    `json:"deal_id,omitempty" db:"deal_id"`
	LeadID      string    `json:"lead_id,omitempty" db:"lead_id"`
	Status      string    `json:"status" db:"status"`
	StepsRun    int       `json:"steps_run" db:"steps_run"`
	Error       string    `json:"error,omitempty" db:"error"`
	ExecutedAt  time.Time `json:"executed_at" db:"executed_at"`

	// Data snapshots the trigger context the workflow ran against.
	Data json.RawMessage `json:"execution_data,omitempty" db:"execution_data"`
}

// TriggerContext is the event payload a workflow runs against.
type TriggerContext struct {
	DealID string         `json:"deal_id,omitempty"`
	Lead   *leads.Lead    `json:"lead,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Step configs.

type updateDealConfig struct {
	Fields map[string]any `json:"fields"`
}

type createTaskConfig struct {
	Title     string `json:"title"`
	Assignee  string `json:"assignee,omitempty"`
	DueInDays int    `json:"due_in_days,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type sendEmailConfig struct {
	Subject    string `json:"subject"`
	Content    string `json:"content"`
	TemplateID string `json:"template_id,omitempty"`
}

type webhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type timeBasedConfig struct {
	DelayDays *int `json:"delay_days"`
}

const defaultDelayDays = 7
