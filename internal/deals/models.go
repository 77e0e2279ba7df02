package deals

import "time"

type Stage string

const (
	StageLead        Stage = "lead"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

func (s Stage) Valid() bool {
	switch s {
	case StageLead, StageQualified, StageProposal, StageNegotiation, StageWon, StageLost:
		return true
	}
	return false
}

// Deal is a lightweight CRM record that workflow triggers hang off.
type Deal struct {
	ID       string  `json:"id" db:"id"`
	TenantID string  `json:"tenant_id" db:"tenant_id"`
	LeadID   string  `json:"lead_id,omitempty" db:"lead_id"`
	Title    string  `json:"title" db:"title"`
	Stage    Stage   `json:"stage" db:"stage"`
	Value    float64 `json:"value" db:"value"`

	// Properties holds free-form fields set by users or update_deal steps.
	Properties map[string]any `json:"properties,omitempty" db:"properties"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Trigger types emitted by Service.
const (
	EventDealCreated      = "deal_created"
	EventDealStageChanged = "deal_stage_changed"
)

// Event is what the deal service hands to its EventSink.
type Event struct {
	Type     string
	TenantID string
	Deal     Deal
	Data     map[string]any
}
