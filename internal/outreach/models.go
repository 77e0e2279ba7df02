package outreach

import "time"

type Status string

const (
	StatusQueued  Status = "queued"
	StatusSent    Status = "sent"
	StatusOpened  Status = "opened"
	StatusClicked Status = "clicked"
	StatusReplied Status = "replied"
	StatusBounced Status = "bounced"
)

var statusRank = map[Status]int{
	StatusQueued:  0,
	StatusSent:    1,
	StatusOpened:  2,
	StatusClicked: 3,
	StatusReplied: 4,
}

// CanTransition reports whether an email may move from one status to another.
// Engagement only moves forward; bounced is reachable from queued or sent and is terminal.
func CanTransition(from, to Status) bool {
	if from == to || from == StatusBounced {
		return false
	}
	if to == StatusBounced {
		return from == StatusQueued || from == StatusSent
	}
	fr, ok1 := statusRank[from]
	tr, ok2 := statusRank[to]
	return ok1 && ok2 && tr > fr
}

// Email is one outbound message, queued or sent.
type Email struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Origin. At most one of sequence/workflow is set.
	CampaignID   string `json:"campaign_id,omitempty" db:"campaign_id"`
	SequenceID   string `json:"sequence_id,omitempty" db:"sequence_id"`
	EnrollmentID string `json:"enrollment_id,omitempty" db:"enrollment_id"`
	StepIndex    int    `json:"step_index" db:"step_index"`
	WorkflowID   string `json:"workflow_id,omitempty" db:"workflow_id"`
	TemplateID   string `json:"template_id,omitempty" db:"template_id"`
	LeadID       string `json:"lead_id,omitempty" db:"lead_id"`

	ToEmail string `json:"to_email" db:"to_email"`
	ToName  string `json:"to_name,omitempty" db:"to_name"`
	Subject string `json:"subject" db:"subject"`
	Body    string `json:"body" db:"body"`

	Status            Status `json:"status" db:"status"`
	ProviderMessageID string `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Attempts          int    `json:"attempts" db:"attempts"`
	LastError         string `json:"last_error,omitempty" db:"last_error"`

	SentAt    *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	OpenedAt  *time.Time `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt *time.Time `json:"clicked_at,omitempty" db:"clicked_at"`
	RepliedAt *time.Time `json:"replied_at,omitempty" db:"replied_at"`
	BouncedAt *time.Time `json:"bounced_at,omitempty" db:"bounced_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// stamp sets the timestamp column that belongs to a status.
func (e *Email) stamp(s Status, at time.Time) {
	t := at
	switch s {
	case StatusSent:
		e.SentAt = &t
	case StatusOpened:
		e.OpenedAt = &t
	case StatusClicked:
		e.ClickedAt = &t
	case StatusReplied:
		e.RepliedAt = &t
	case StatusBounced:
		e.BouncedAt = &t
	}
}
