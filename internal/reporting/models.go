package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// OutreachSummaryRequest aggregates emails created in Range.
// Tenant isolation: TenantID is required.
type OutreachSummaryRequest struct {
	TenantID   string    `json:"tenant_id"`
	Range      TimeRange `json:"range"`
	SequenceID string    `json:"sequence_id,omitempty"`
}

// OutreachSummary counts emails by their current status. Statuses only move
// forward, so a clicked email also counts as opened in the rates.
type OutreachSummary struct {
	TenantID   string `json:"tenant_id"`
	SequenceID string `json:"sequence_id,omitempty"`

	Total   int `json:"total"`
	Queued  int `json:"queued"`
	Sent    int `json:"sent"`
	Opened  int `json:"opened"`
	Clicked int `json:"clicked"`
	Replied int `json:"replied"`
	Bounced int `json:"bounced"`

	// Delivered is every email that left the queue without bouncing.
	Delivered int `json:"delivered"`

	OpenRate   float64 `json:"open_rate"`
	ClickRate  float64 `json:"click_rate"`
	ReplyRate  float64 `json:"reply_rate"`
	BounceRate float64 `json:"bounce_rate"`
}

type PipelineSummaryRequest struct {
	TenantID string `json:"tenant_id"`
}

type StageTotals struct {
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

type PipelineSummary struct {
	TenantID   string                 `json:"tenant_id"`
	Stages     map[string]StageTotals `json:"stages"`
	OpenValue  float64                `json:"open_value"`
	WonValue   float64                `json:"won_value"`
	WinRate    float64                `json:"win_rate"`
	TotalDeals int                    `json:"total_deals"`
}
