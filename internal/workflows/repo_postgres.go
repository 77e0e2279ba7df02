package workflows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"emex-dashboard/pkg/utils"

	json "github.com/goccy/go-json"
)

// PostgresRepo stores workflows, workflow_steps and workflow_executions.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) InsertWorkflow(ctx context.Context, w Workflow) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const qw = `
INSERT INTO workflows (id, tenant_id, name, trigger_type, trigger_config, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
		if _, err := tx.ExecContext(ctx, qw, w.ID, w.TenantID, w.Name, w.TriggerType, nullJSON(w.TriggerConfig), w.IsActive, w.CreatedAt, w.UpdatedAt); err != nil {
			return err
		}
		const qs = `
INSERT INTO workflow_steps (id, tenant_id, workflow_id, step_order, step_type, step_config, conditions, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
		for _, st := range w.Steps {
			conds, err := json.Marshal(st.Conditions)
			if err != nil {
				return fmt.Errorf("encode conditions: %w", err)
			}
			if _, err := tx.ExecContext(ctx, qs, st.ID, w.TenantID, w.ID, st.StepOrder, string(st.StepType), nullJSON(st.StepConfig), conds, st.IsActive); err != nil {
				return err
			}
		}
		return nil
	})
}

const workflowColumns = `id, tenant_id, name, trigger_type, COALESCE(trigger_config::text, ''), is_active, created_at, updated_at`

func (r *PostgresRepo) GetWorkflow(ctx context.Context, tenantID, id string) (Workflow, error) {
	const q = `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = $1 AND id = $2`
	w, err := scanWorkflow(r.db.QueryRowContext(ctx, q, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workflow{}, ErrNotFound
		}
		return Workflow{}, err
	}
	if err := r.attachSteps(ctx, tenantID, []*Workflow{&w}); err != nil {
		return Workflow{}, err
	}
	return w, nil
}

func (r *PostgresRepo) ListWorkflows(ctx context.Context, tenantID string) ([]Workflow, error) {
	const q = `SELECT ` + workflowColumns + ` FROM workflows WHERE tenant_id = $1 ORDER BY created_at, id`
	return r.queryWorkflows(ctx, tenantID, q, tenantID)
}

func (r *PostgresRepo) SetActive(ctx context.Context, tenantID, id string, active bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE workflows SET is_active = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`, tenantID, id, active, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListActiveByTrigger(ctx context.Context, tenantID, triggerType string) ([]Workflow, error) {
	const q = `
SELECT ` + workflowColumns + ` FROM workflows
WHERE tenant_id = $1 AND trigger_type = $2 AND is_active = TRUE
ORDER BY created_at, id
`
	return r.queryWorkflows(ctx, tenantID, q, tenantID, triggerType)
}

const executionColumns = `id, tenant_id, workflow_id, trigger_type, deal_id, lead_id, status, steps_run, error, execution_data, executed_at`

func (r *PostgresRepo) InsertExecution(ctx context.Context, e Execution) error {
	const q = `INSERT INTO workflow_executions (` + executionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.TenantID, e.WorkflowID, e.TriggerType, e.DealID, e.LeadID, e.Status, e.StepsRun, e.Error, nullJSON(e.Data), e.ExecutedAt)
	return err
}

func (r *PostgresRepo) LatestExecution(ctx context.Context, tenantID, workflowID string) (Execution, error) {
	const q = `
SELECT ` + executionColumns + ` FROM workflow_executions
WHERE tenant_id = $1 AND workflow_id = $2
ORDER BY executed_at DESC
LIMIT 1
`
	e, err := scanExecution(r.db.QueryRowContext(ctx, q, tenantID, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Execution{}, ErrNotFound
		}
		return Execution{}, err
	}
	return e, nil
}

func (r *PostgresRepo) ListExecutions(ctx context.Context, tenantID, workflowID string, limit int) ([]Execution, error) {
	const q = `
SELECT ` + executionColumns + ` FROM workflow_executions
WHERE tenant_id = $1 AND workflow_id = $2
ORDER BY executed_at DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Execution, 0)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) TenantsWithTrigger(ctx context.Context, triggerType string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM workflows WHERE trigger_type = $1 AND is_active = TRUE ORDER BY tenant_id`, triggerType)
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

func (r *PostgresRepo) queryWorkflows(ctx context.Context, tenantID, q string, args ...any) ([]Workflow, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]Workflow, 0)
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	ptrs := make([]*Workflow, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := r.attachSteps(ctx, tenantID, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// attachSteps loads steps for all workflows in one query.
func (r *PostgresRepo) attachSteps(ctx context.Context, tenantID string, wfs []*Workflow) error {
	if len(wfs) == 0 {
		return nil
	}
	byID := make(map[string]*Workflow, len(wfs))
	ids := make([]string, 0, len(wfs))
	for _, w := range wfs {
		byID[w.ID] = w
		w.Steps = []Step{}
		ids = append(ids, w.ID)
	}

	const q = `
SELECT id, workflow_id, step_order, step_type, COALESCE(step_config::text, ''), COALESCE(conditions::text, ''), is_active
FROM workflow_steps
WHERE tenant_id = $1 AND workflow_id = ANY($2)
ORDER BY workflow_id, step_order
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var st Step
		var typ, cfg, conds string
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.StepOrder, &typ, &cfg, &conds, &st.IsActive); err != nil {
			return err
		}
		st.StepType = StepType(typ)
		if cfg != "" {
			st.StepConfig = json.RawMessage(cfg)
		}
		if conds != "" && conds != "null" {
			if err := json.Unmarshal([]byte(conds), &st.Conditions); err != nil {
				return fmt.Errorf("decode conditions: %w", err)
			}
		}
		if w, ok := byID[st.WorkflowID]; ok {
			w.Steps = append(w.Steps, st)
		}
	}
	return rows.Err()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(s rowScanner) (Workflow, error) {
	var w Workflow
	var cfg string
	if err := s.Scan(&w.ID, &w.TenantID, &w.Name, &w.TriggerType, &cfg, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Workflow{}, err
	}
	if cfg != "" {
		w.TriggerConfig = json.RawMessage(cfg)
	}
	return w, nil
}

func scanExecution(s rowScanner) (Execution, error) {
	var (
		e    Execution
		data []byte
	)
	err := s.Scan(&e.ID, &e.TenantID, &e.WorkflowID, &e.TriggerType, &e.DealID, &e.LeadID, &e.Status, &e.StepsRun, &e.Error, &data, &e.ExecutedAt)
	if len(data) > 0 {
		e.Data = json.RawMessage(data)
	}
	return e, err
}
