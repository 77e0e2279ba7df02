package deals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const dealColumns = `id, tenant_id, lead_id, title, stage, value, properties, created_at, updated_at`

func (r *PostgresRepo) Insert(ctx context.Context, d Deal) error {
	props, err := encodeProps(d.Properties)
	if err != nil {
		return err
	}
	const q = `INSERT INTO deals (` + dealColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.ExecContext(ctx, q, d.ID, d.TenantID, d.LeadID, d.Title, string(d.Stage), d.Value, props, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Deal, error) {
	const q = `SELECT ` + dealColumns + ` FROM deals WHERE tenant_id = $1 AND id = $2`
	d, err := scanDeal(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, err
	}
	return d, nil
}

func (r *PostgresRepo) Update(ctx context.Context, d Deal) error {
	props, err := encodeProps(d.Properties)
	if err != nil {
		return err
	}
	const q = `
UPDATE deals SET title = $3, stage = $4, value = $5, properties = $6, updated_at = $7
WHERE tenant_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, d.TenantID, d.ID, d.Title, string(d.Stage), d.Value, props, d.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, stage Stage) ([]Deal, error) {
	const q = `
SELECT ` + dealColumns + ` FROM deals
WHERE tenant_id = $1 AND ($2 = '' OR stage = $2)
ORDER BY created_at DESC, id
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, string(stage))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Deal, 0)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func encodeProps(p map[string]any) ([]byte, error) {
	if p == nil {
		p = map[string]any{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(s rowScanner) (Deal, error) {
	var d Deal
	var stage string
	var props []byte
	if err := s.Scan(&d.ID, &d.TenantID, &d.LeadID, &d.Title, &stage, &d.Value, &props, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Deal{}, err
	}
	d.Stage = Stage(stage)
	if len(props) > 0 {
		if err := json.Unmarshal(props, &d.Properties); err != nil {
			return Deal{}, fmt.Errorf("decode properties: %w", err)
		}
	}
	return d, nil
}
