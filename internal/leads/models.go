package leads

import "time"

type EmailStatus string

const (
	EmailStatusValid   EmailStatus = "valid"
	EmailStatusInvalid EmailStatus = "invalid"
	EmailStatusUnknown EmailStatus = "unknown"
)

// Lead is a prospect owned by a tenant.
//
// Score and IsOutreachReady are derived values. They are recomputed by the
// service whenever job title, email, company or region change; never set them
// directly from request input.
type Lead struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone,omitempty" db:"phone"`
	Company   string `json:"company,omitempty" db:"company"`
	JobTitle  string `json:"job_title,omitempty" db:"job_title"`
	Region    string `json:"region,omitempty" db:"region"`
	Source    string `json:"source,omitempty" db:"source"`

	Score           int         `json:"score" db:"score"`
	IsOutreachReady bool        `json:"is_outreach_ready" db:"is_outreach_ready"`
	EmailStatus     EmailStatus `json:"email_status" db:"email_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (l Lead) FullName() string {
	switch {
	case l.FirstName != "" && l.LastName != "":
		return l.FirstName + " " + l.LastName
	case l.FirstName != "":
		return l.FirstName
	default:
		return l.LastName
	}
}

// Patch carries optional field updates. Nil means unchanged.
type Patch struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Company   *string `json:"company"`
	JobTitle  *string `json:"job_title"`
	Region    *string `json:"region"`
}

type ListFilter struct {
	OutreachReady *bool
	MinScore      int
	Limit         int
	Offset        int
}
