package sequences

import "time"

// Step is one timed email in a sequence.
// DelayDays is measured from the previous step's send time (from enrollment for step 0).
type Step struct {
	Subject   string `json:"subject"`
	Content   string `json:"content"`
	DelayDays int    `json:"delayDays"`
}

// Sequence is an ordered list of steps. Edits are not versioned: changing steps
// affects enrollments already in flight.
type Sequence struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`
	Steps    []Step `json:"steps" db:"steps"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentFailed
}

// Enrollment tracks one lead's progress through one sequence.
//
// Invariants:
// - CurrentStep only increases, one step per successful send.
// - CurrentStep never exceeds len(steps).
// - Completed and failed are terminal.
type Enrollment struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	SequenceID string `json:"sequence_id" db:"sequence_id"`
	LeadID     string `json:"lead_id" db:"lead_id"`

	CurrentStep int              `json:"current_step" db:"current_step"`
	Status      EnrollmentStatus `json:"status" db:"status"`
	NextSendAt  *time.Time       `json:"next_send_at" db:"next_send_at"`
	LastSentAt  *time.Time       `json:"last_sent_at,omitempty" db:"last_sent_at"`

	// Attempts counts failed sends of the current step.
	Attempts  int    `json:"attempts" db:"attempts"`
	LastError string `json:"last_error,omitempty" db:"last_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result is the per-enrollment outcome of one sweep.
type Result struct {
	EnrollmentID string  `json:"enrollment_id"`
	LeadID       string  `json:"lead_id,omitempty"`
	StepIndex    int     `json:"step_index"`
	Outcome      Outcome `json:"outcome"`
	Reason       string  `json:"reason,omitempty"`
	EmailID      string  `json:"email_id,omitempty"`
}

// Summary counts results by outcome.
type Summary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func Summarize(results []Result) Summary {
	s := Summary{Processed: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSent:
			s.Sent++
		case OutcomeCompleted:
			s.Completed++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

// Advance is a conditional state change applied after a claimed enrollment was handled.
// It only applies while the claim token still owns the row and CurrentStep == FromStep.
type Advance struct {
	FromStep   int
	ToStep     int
	Status     EnrollmentStatus
	NextSendAt *time.Time
	LastSentAt *time.Time
	At         time.Time
}

// Release gives a claimed enrollment back without advancing it.
type Release struct {
	Status       EnrollmentStatus
	AttemptDelta int
	LastError    string
	// RetryAt keeps the row invisible to sweeps until then. Zero frees it immediately.
	RetryAt time.Time
	At      time.Time
}
