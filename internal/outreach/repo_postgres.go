package outreach

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"emex-dashboard/pkg/utils"
)

// PostgresRepo stores emails in outreach_emails.
// Lease columns (locked_until, lock_token) are internal and never leave this file.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const emailColumns = `id, tenant_id, campaign_id, sequence_id, enrollment_id, step_index, workflow_id, template_id, lead_id,
to_email, to_name, subject, body, status, provider_message_id, attempts, last_error,
sent_at, opened_at, clicked_at, replied_at, bounced_at, created_at, updated_at`

func (r *PostgresRepo) Insert(ctx context.Context, e Email) error {
	const q = `
INSERT INTO outreach_emails (` + emailColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.TenantID, e.CampaignID, e.SequenceID, e.EnrollmentID, e.StepIndex, e.WorkflowID, e.TemplateID, e.LeadID,
		e.ToEmail, e.ToName, e.Subject, e.Body, string(e.Status), e.ProviderMessageID, e.Attempts, e.LastError,
		e.SentAt, e.OpenedAt, e.ClickedAt, e.RepliedAt, e.BouncedAt, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Email, error) {
	const q = `SELECT ` + emailColumns + ` FROM outreach_emails WHERE tenant_id = $1 AND id = $2`
	e, err := scanEmail(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Email{}, ErrNotFound
		}
		return Email{}, err
	}
	return e, nil
}

// statusColumn maps a status to the timestamp column it stamps.
var statusColumn = map[Status]string{
	StatusSent:    "sent_at",
	StatusOpened:  "opened_at",
	StatusClicked: "clicked_at",
	StatusReplied: "replied_at",
	StatusBounced: "bounced_at",
}

func (r *PostgresRepo) Transition(ctx context.Context, tenantID, id string, to Status, at time.Time) (Email, error) {
	col, ok := statusColumn[to]
	if !ok {
		return Email{}, ErrInvalidTransition
	}
	var out Email
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `SELECT ` + emailColumns + ` FROM outreach_emails WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
		cur, err := scanEmail(tx.QueryRowContext(ctx, sel, tenantID, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if !CanTransition(cur.Status, to) {
			out = cur
			return ErrInvalidTransition
		}
		// col comes from statusColumn, never from input.
		upd := `UPDATE outreach_emails SET status = $3, ` + col + ` = $4, updated_at = $4 WHERE tenant_id = $1 AND id = $2`
		if _, err := tx.ExecContext(ctx, upd, tenantID, id, string(to), at); err != nil {
			return err
		}
		cur.Status = to
		cur.stamp(to, at)
		cur.UpdatedAt = at
		out = cur
		return nil
	})
	return out, err
}

func (r *PostgresRepo) ClaimQueued(ctx context.Context, tenantID string, now time.Time, lease time.Duration, limit int, token string) ([]Email, error) {
	const q = `
UPDATE outreach_emails
SET locked_until = $3, lock_token = $4
WHERE tenant_id = $1 AND id IN (
    SELECT id FROM outreach_emails
    WHERE tenant_id = $1
      AND status = 'queued'
      AND (locked_until IS NULL OR locked_until <= $2)
    ORDER BY created_at
    LIMIT $5
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + emailColumns
	rows, err := r.db.QueryContext(ctx, q, tenantID, now, now.Add(lease), token, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Email, 0)
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkSent(ctx context.Context, tenantID, id, token, providerMessageID string, at time.Time) error {
	const q = `
UPDATE outreach_emails
SET status = 'sent', sent_at = $4, provider_message_id = $5, attempts = attempts + 1,
    updated_at = $4, locked_until = NULL, lock_token = NULL
WHERE tenant_id = $1 AND id = $2 AND lock_token = $3 AND status = 'queued'
`
	return expectOne(r.db.ExecContext(ctx, q, tenantID, id, token, at, providerMessageID))
}

func (r *PostgresRepo) ReleaseQueued(ctx context.Context, tenantID, id, token, reason string, retryAt time.Time) error {
	const q = `
UPDATE outreach_emails
SET attempts = attempts + 1, last_error = $4, locked_until = $5, lock_token = NULL
WHERE tenant_id = $1 AND id = $2 AND lock_token = $3 AND status = 'queued'
`
	return expectOne(r.db.ExecContext(ctx, q, tenantID, id, token, reason, retryAt))
}

func (r *PostgresRepo) MarkBouncedClaimed(ctx context.Context, tenantID, id, token, reason string, at time.Time) error {
	const q = `
UPDATE outreach_emails
SET status = 'bounced', bounced_at = $5, attempts = attempts + 1, last_error = $4,
    updated_at = $5, locked_until = NULL, lock_token = NULL
WHERE tenant_id = $1 AND id = $2 AND lock_token = $3 AND status = 'queued'
`
	return expectOne(r.db.ExecContext(ctx, q, tenantID, id, token, reason, at))
}

func (r *PostgresRepo) ListEmails(ctx context.Context, tenantID string, from, to time.Time, sequenceID string) ([]Email, error) {
	const q = `
SELECT ` + emailColumns + `
FROM outreach_emails
WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
  AND ($4 = '' OR sequence_id = $4)
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, from, to, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Email, 0)
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) TenantsWithQueued(ctx context.Context, now time.Time) ([]string, error) {
	const q = `
SELECT DISTINCT tenant_id FROM outreach_emails
WHERE status = 'queued' AND (locked_until IS NULL OR locked_until <= $1)
ORDER BY tenant_id
`
	rows, err := r.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimLost
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(s rowScanner) (Email, error) {
	var e Email
	var status string
	err := s.Scan(
		&e.ID, &e.TenantID, &e.CampaignID, &e.SequenceID, &e.EnrollmentID, &e.StepIndex, &e.WorkflowID, &e.TemplateID, &e.LeadID,
		&e.ToEmail, &e.ToName, &e.Subject, &e.Body, &status, &e.ProviderMessageID, &e.Attempts, &e.LastError,
		&e.SentAt, &e.OpenedAt, &e.ClickedAt, &e.RepliedAt, &e.BouncedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	e.Status = Status(status)
	return e, err
}
