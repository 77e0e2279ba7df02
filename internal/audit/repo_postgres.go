package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to activity_log. It never updates or deletes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO activity_log (id, tenant_id, type, actor_user_id, actor_role, ip_address,
    lead_id, deal_id, workflow_id, sequence_id, enrollment_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, '')::jsonb, $14)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.TenantID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.LeadID, e.DealID, e.WorkflowID, e.SequenceID, e.EnrollmentID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, f Filter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, tenant_id, type, actor_user_id, actor_role, ip_address,
       lead_id, deal_id, workflow_id, sequence_id, enrollment_id, message, COALESCE(metadata::text, ''), created_at
FROM activity_log
WHERE tenant_id = $1
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR deal_id = $3)
  AND ($4 = '' OR lead_id = $4)
ORDER BY created_at DESC
LIMIT $5
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, string(f.Type), f.DealID, f.LeadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.TenantID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.LeadID, &e.DealID, &e.WorkflowID, &e.SequenceID, &e.EnrollmentID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
