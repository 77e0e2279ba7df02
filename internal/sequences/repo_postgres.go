package sequences

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"emex-dashboard/pkg/utils"

	json "github.com/goccy/go-json"
)

// PostgresRepo stores sequences (steps as JSONB) and sequence_enrollments.
// The lease columns locked_until and lock_token implement the atomic claim.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) InsertSequence(ctx context.Context, s Sequence) error {
	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	const q = `
INSERT INTO sequences (id, tenant_id, name, steps, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err = r.db.ExecContext(ctx, q, s.ID, s.TenantID, s.Name, steps, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *PostgresRepo) GetSequence(ctx context.Context, tenantID, id string) (Sequence, error) {
	const q = `SELECT id, tenant_id, name, steps, created_at, updated_at FROM sequences WHERE tenant_id = $1 AND id = $2`
	s, err := scanSequence(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Sequence{}, ErrNotFound
		}
		return Sequence{}, err
	}
	return s, nil
}

func (r *PostgresRepo) ListSequences(ctx context.Context, tenantID string) ([]Sequence, error) {
	const q = `SELECT id, tenant_id, name, steps, created_at, updated_at FROM sequences WHERE tenant_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Sequence, 0)
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateSteps(ctx context.Context, tenantID, id string, steps []Step, at time.Time) error {
	raw, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sequences SET steps = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, raw, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const enrollmentColumns = `id, tenant_id, sequence_id, lead_id, current_step, status, next_send_at, last_sent_at,
attempts, last_error, created_at, updated_at`

func (r *PostgresRepo) InsertEnrollments(ctx context.Context, es []Enrollment) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO sequence_enrollments (` + enrollmentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`
		for _, e := range es {
			if _, err := tx.ExecContext(ctx, q,
				e.ID, e.TenantID, e.SequenceID, e.LeadID, e.CurrentStep, string(e.Status), e.NextSendAt, e.LastSentAt,
				e.Attempts, e.LastError, e.CreatedAt, e.UpdatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) GetEnrollment(ctx context.Context, tenantID, id string) (Enrollment, error) {
	const q = `SELECT ` + enrollmentColumns + ` FROM sequence_enrollments WHERE tenant_id = $1 AND id = $2`
	e, err := scanEnrollment(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, err
	}
	return e, nil
}

func (r *PostgresRepo) ListEnrollments(ctx context.Context, tenantID, sequenceID string, status EnrollmentStatus) ([]Enrollment, error) {
	const q = `
SELECT ` + enrollmentColumns + `
FROM sequence_enrollments
WHERE tenant_id = $1 AND sequence_id = $2 AND ($3 = '' OR status = $3)
ORDER BY created_at, id
`
	return r.queryEnrollments(ctx, q, tenantID, sequenceID, string(status))
}

// ClaimDue leases due rows with FOR UPDATE SKIP LOCKED so concurrent sweeps
// partition the work instead of sharing it.
func (r *PostgresRepo) ClaimDue(ctx context.Context, tenantID string, now time.Time, lease time.Duration, limit int, token string) ([]Enrollment, error) {
	const q = `
UPDATE sequence_enrollments
SET locked_until = $3, lock_token = $4
WHERE tenant_id = $1 AND id IN (
    SELECT id FROM sequence_enrollments
    WHERE tenant_id = $1
      AND status = 'active'
      AND next_send_at <= $2
      AND (locked_until IS NULL OR locked_until <= $2)
    ORDER BY next_send_at, id
    LIMIT $5
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + enrollmentColumns
	return r.queryEnrollments(ctx, q, tenantID, now, now.Add(lease), token, limit)
}

func (r *PostgresRepo) Advance(ctx context.Context, tenantID, id, token string, a Advance) error {
	const q = `
UPDATE sequence_enrollments
SET current_step = $5, status = $6, next_send_at = $7, last_sent_at = COALESCE($8, last_sent_at),
    attempts = 0, last_error = '', updated_at = $9, locked_until = NULL, lock_token = NULL
WHERE tenant_id = $1 AND id = $2 AND lock_token = $3 AND current_step = $4 AND status = 'active'
`
	return expectOne(r.db.ExecContext(ctx, q, tenantID, id, token, a.FromStep, a.ToStep, string(a.Status), a.NextSendAt, a.LastSentAt, a.At))
}

func (r *PostgresRepo) Release(ctx context.Context, tenantID, id, token string, rel Release) error {
	var retryAt *time.Time
	if !rel.RetryAt.IsZero() {
		retryAt = &rel.RetryAt
	}
	const q = `
UPDATE sequence_enrollments
SET status = $4, attempts = attempts + $5, last_error = COALESCE(NULLIF($6, ''), last_error),
    updated_at = $7, locked_until = $8, lock_token = NULL
WHERE tenant_id = $1 AND id = $2 AND lock_token = $3 AND status = 'active'
`
	return expectOne(r.db.ExecContext(ctx, q, tenantID, id, token, string(rel.Status), rel.AttemptDelta, rel.LastError, rel.At, retryAt))
}

func (r *PostgresRepo) DueTenants(ctx context.Context, now time.Time) ([]string, error) {
	const q = `
SELECT DISTINCT tenant_id FROM sequence_enrollments
WHERE status = 'active' AND next_send_at <= $1 AND (locked_until IS NULL OR locked_until <= $1)
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

func (r *PostgresRepo) queryEnrollments(ctx context.Context, q string, args ...any) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
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

func scanSequence(s rowScanner) (Sequence, error) {
	var seq Sequence
	var raw []byte
	if err := s.Scan(&seq.ID, &seq.TenantID, &seq.Name, &raw, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
		return Sequence{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &seq.Steps); err != nil {
			return Sequence{}, fmt.Errorf("decode steps: %w", err)
		}
	}
	return seq, nil
}

func scanEnrollment(s rowScanner) (Enrollment, error) {
	var e Enrollment
	var status string
	err := s.Scan(&e.ID, &e.TenantID, &e.SequenceID, &e.LeadID, &e.CurrentStep, &status, &e.NextSendAt, &e.LastSentAt,
		&e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	e.Status = EnrollmentStatus(status)
	return e, err
}
