package audit

import "time"

// Event is an immutable, append-only activity log record.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - Logging is best-effort; critical flows never fail because of it.
//
// Storage (Postgres): table activity_log, INSERT-only.
type Event struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the user or service causing the event, if any.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// Target identifiers, depending on the event type.
	LeadID       string `json:"lead_id,omitempty" db:"lead_id"`
	DealID       string `json:"deal_id,omitempty" db:"deal_id"`
	WorkflowID   string `json:"workflow_id,omitempty" db:"workflow_id"`
	SequenceID   string `json:"sequence_id,omitempty" db:"sequence_id"`
	EnrollmentID string `json:"enrollment_id,omitempty" db:"enrollment_id"`

	// Message is a short human-readable description.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeDealUpdated       EventType = "deal_updated"
	EventTypeTaskCreated       EventType = "task_created"
	EventTypeWorkflowExecuted  EventType = "workflow_executed"
	EventTypeSequenceCompleted EventType = "sequence_completed"
	EventTypeLeadsImported     EventType = "leads_imported"
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	Type   EventType
	DealID string
	LeadID string
	Limit  int
}
