package leads

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo stores leads in the leads table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const leadColumns = `id, tenant_id, first_name, last_name, email, phone, company, job_title, region, source,
score, is_outreach_ready, email_status, created_at, updated_at`

func (r *PostgresRepo) Insert(ctx context.Context, l Lead) error {
	const q = `
INSERT INTO leads (` + leadColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`
	_, err := r.db.ExecContext(ctx, q,
		l.ID, l.TenantID, l.FirstName, l.LastName, l.Email, l.Phone, l.Company, l.JobTitle, l.Region, l.Source,
		l.Score, l.IsOutreachReady, string(l.EmailStatus), l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, l Lead) error {
	const q = `
UPDATE leads
SET first_name = $3, last_name = $4, email = $5, phone = $6, company = $7, job_title = $8, region = $9,
    score = $10, is_outreach_ready = $11, email_status = $12, updated_at = $13
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		l.TenantID, l.ID, l.FirstName, l.LastName, l.Email, l.Phone, l.Company, l.JobTitle, l.Region,
		l.Score, l.IsOutreachReady, string(l.EmailStatus), l.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Lead, error) {
	const q = `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND id = $2`
	l, err := scanLead(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, f ListFilter) ([]Lead, error) {
	const q = `
SELECT ` + leadColumns + `
FROM leads
WHERE tenant_id = $1
  AND score >= $2
  AND ($3::boolean IS NULL OR is_outreach_ready = $3)
ORDER BY score DESC, id
LIMIT $4 OFFSET $5
`
	var ready sql.NullBool
	if f.OutreachReady != nil {
		ready = sql.NullBool{Bool: *f.OutreachReady, Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, q, tenantID, f.MinScore, ready, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s rowScanner) (Lead, error) {
	var l Lead
	var status string
	err := s.Scan(
		&l.ID, &l.TenantID, &l.FirstName, &l.LastName, &l.Email, &l.Phone, &l.Company, &l.JobTitle, &l.Region, &l.Source,
		&l.Score, &l.IsOutreachReady, &status, &l.CreatedAt, &l.UpdatedAt,
	)
	l.EmailStatus = EmailStatus(status)
	return l, err
}
