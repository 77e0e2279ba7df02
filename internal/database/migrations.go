package database

// migrations is an ordered list of SQL migration groups. Each entry runs in a
// single transaction; the version number is the 1-based index into this slice.
var migrations = [][]string{
	// Migration 1: leads, sequences, enrollments
	{
		`CREATE TABLE leads (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			job_title TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0 CHECK (score BETWEEN 0 AND 100),
			is_outreach_ready BOOLEAN NOT NULL DEFAULT FALSE,
			email_status TEXT NOT NULL DEFAULT 'unknown',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_leads_tenant_score ON leads(tenant_id, score DESC)`,
		`CREATE INDEX idx_leads_tenant_email ON leads(tenant_id, email)`,

		`CREATE TABLE sequences (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			steps JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_sequences_tenant ON sequences(tenant_id, created_at)`,

		`CREATE TABLE sequence_enrollments (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			sequence_id TEXT NOT NULL REFERENCES sequences(id) ON DELETE CASCADE,
			lead_id TEXT NOT NULL,
			current_step INTEGER NOT NULL DEFAULT 0 CHECK (current_step >= 0),
			status TEXT NOT NULL CHECK (status IN ('active', 'completed', 'failed')),
			next_send_at TIMESTAMPTZ,
			last_sent_at TIMESTAMPTZ,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			locked_until TIMESTAMPTZ,
			lock_token TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_enrollments_due ON sequence_enrollments(tenant_id, next_send_at) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX idx_enrollments_active_lead ON sequence_enrollments(sequence_id, lead_id) WHERE status = 'active'`,
	},

	// Migration 2: outreach emails
	{
		`CREATE TABLE outreach_emails (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			campaign_id TEXT NOT NULL DEFAULT '',
			sequence_id TEXT NOT NULL DEFAULT '',
			enrollment_id TEXT NOT NULL DEFAULT '',
			step_index INTEGER NOT NULL DEFAULT 0,
			workflow_id TEXT NOT NULL DEFAULT '',
			template_id TEXT NOT NULL DEFAULT '',
			lead_id TEXT NOT NULL DEFAULT '',
			to_email TEXT NOT NULL,
			to_name TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('queued', 'sent', 'opened', 'clicked', 'replied', 'bounced')),
			provider_message_id TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			sent_at TIMESTAMPTZ,
			opened_at TIMESTAMPTZ,
			clicked_at TIMESTAMPTZ,
			replied_at TIMESTAMPTZ,
			bounced_at TIMESTAMPTZ,
			locked_until TIMESTAMPTZ,
			lock_token TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_outreach_queued ON outreach_emails(tenant_id, created_at) WHERE status = 'queued'`,
		`CREATE INDEX idx_outreach_tenant_created ON outreach_emails(tenant_id, created_at)`,
		`CREATE INDEX idx_outreach_provider_id ON outreach_emails(provider_message_id) WHERE provider_message_id <> ''`,
	},

	// Migration 3: workflows, deals, activity log
	{
		`CREATE TABLE workflows (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			trigger_config JSONB,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_workflows_trigger ON workflows(tenant_id, trigger_type) WHERE is_active`,

		`CREATE TABLE workflow_steps (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
			step_order INTEGER NOT NULL,
			step_type TEXT NOT NULL,
			step_config JSONB,
			conditions JSONB,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE INDEX idx_workflow_steps_order ON workflow_steps(workflow_id, step_order)`,

		`CREATE TABLE workflow_executions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			deal_id TEXT NOT NULL DEFAULT '',
			lead_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('completed', 'failed')),
			steps_run INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			execution_data JSONB,
			executed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_workflow_executions_latest ON workflow_executions(tenant_id, workflow_id, executed_at DESC)`,

		`CREATE TABLE deals (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			lead_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			stage TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL DEFAULT 0,
			properties JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_deals_tenant_stage ON deals(tenant_id, stage)`,

		`CREATE TABLE activity_log (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			type TEXT NOT NULL,
			actor_user_id TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			lead_id TEXT NOT NULL DEFAULT '',
			deal_id TEXT NOT NULL DEFAULT '',
			workflow_id TEXT NOT NULL DEFAULT '',
			sequence_id TEXT NOT NULL DEFAULT '',
			enrollment_id TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX idx_activity_tenant_created ON activity_log(tenant_id, created_at DESC)`,
		// Append-only: reject UPDATE and DELETE.
		`CREATE FUNCTION activity_log_immutable() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'activity_log is append-only';
		END;
		$$ LANGUAGE plpgsql`,
		`CREATE TRIGGER activity_log_no_mutation BEFORE UPDATE OR DELETE ON activity_log
			FOR EACH ROW EXECUTE FUNCTION activity_log_immutable()`,
	},
}
