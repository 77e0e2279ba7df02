package workflows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/leads"
	"emex-dashboard/internal/metrics"
	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/templates"
	"emex-dashboard/pkg/logger"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

type DealPatcher interface {
	Patch(ctx context.Context, tenantID, id string, patch map[string]any) (deals.Deal, []string, error)
}

type ActivityLogger interface {
	LogDealUpdated(ctx context.Context, tenantID, dealID, workflowID, message string, changes map[string]any) error
	LogTaskCreated(ctx context.Context, tenantID, dealID, workflowID, title string, details map[string]any) error
	LogWorkflowExecuted(ctx context.Context, tenantID, workflowID, dealID, status string) error
}

type EmailQueue interface {
	Enqueue(ctx context.Context, e outreach.Email) (outreach.Email, error)
}

type LeadSource interface {
	Get(ctx context.Context, tenantID, id string) (leads.Lead, error)
}

// HTTPDoer is the webhook transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Deps struct {
	Deals    DealPatcher
	Activity ActivityLogger
	Emails   EmailQueue
	Leads    LeadSource
	HTTP     HTTPDoer
	Metrics  *metrics.Metrics
}

// Executor runs every active workflow matching a trigger, synchronously.
type Executor struct {
	repo  Repository
	deps  Deps
	clock func() time.Time
}

func NewExecutor(repo Repository, deps Deps) *Executor {
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	return &Executor{repo: repo, deps: deps, clock: time.Now}
}

// Trigger runs all active workflows for triggerType in the tenant and returns
// one execution per workflow. A failing workflow is recorded as failed and
// does not stop the others.
func (x *Executor) Trigger(ctx context.Context, tenantID, triggerType string, tc TriggerContext) ([]Execution, error) {
	if tenantID == "" || triggerType == "" {
		return nil, fmt.Errorf("%w: tenant_id and trigger_type required", ErrInvalidArgument)
	}
	wfs, err := x.repo.ListActiveByTrigger(ctx, tenantID, triggerType)
	if err != nil {
		return nil, err
	}

	log := logger.From(ctx).With("tenant_id", tenantID, "trigger_type", triggerType)
	out := make([]Execution, 0, len(wfs))
	for _, wf := range wfs {
		exec := x.run(ctx, wf, triggerType, tc)
		if err := x.repo.InsertExecution(ctx, exec); err != nil {
			log.Error("workflow execution not recorded", "workflow_id", wf.ID, "error", err)
		}
		if x.deps.Activity != nil {
			if err := x.deps.Activity.LogWorkflowExecuted(ctx, tenantID, wf.ID, tc.DealID, exec.Status); err != nil {
				log.Warn("activity log failed", "workflow_id", wf.ID, "error", err)
			}
		}
		if exec.Status == ExecutionFailed {
			log.Warn("workflow failed", "workflow_id", wf.ID, "error", exec.Error)
		} else {
			log.Info("workflow executed", "workflow_id", wf.ID, "steps_run", exec.StepsRun)
		}
		x.deps.Metrics.WorkflowRun(triggerType, exec.Status)
		out = append(out, exec)
	}
	return out, nil
}

// DealEvent adapts deal service events to Trigger.
func (x *Executor) DealEvent(ctx context.Context, e deals.Event) error {
	data := map[string]any{
		"deal": map[string]any{
			"title": e.Deal.Title,
			"stage": string(e.Deal.Stage),
			"value": e.Deal.Value,
		},
	}
	for k, v := range e.Data {
		data[k] = v
	}
	tc := TriggerContext{DealID: e.Deal.ID, Data: data}
	if e.Deal.LeadID != "" && x.deps.Leads != nil {
		if l, err := x.deps.Leads.Get(ctx, e.TenantID, e.Deal.LeadID); err == nil {
			tc.Lead = &l
		}
	}
	_, err := x.Trigger(ctx, e.TenantID, e.Type, tc)
	return err
}

// ExecutedIDs lists the workflow ids of executions, in order.
func ExecutedIDs(execs []Execution) []string {
	out := make([]string, 0, len(execs))
	for _, e := range execs {
		out = append(out, e.WorkflowID)
	}
	return out
}

func (x *Executor) run(ctx context.Context, wf Workflow, triggerType string, tc TriggerContext) Execution {
	exec := Execution{
		ID:          uuid.NewString(),
		TenantID:    wf.TenantID,
		WorkflowID:  wf.ID,
		TriggerType: triggerType,
		DealID:      tc.DealID,
		Status:      ExecutionCompleted,
	}
	if tc.Lead != nil {
		exec.LeadID = tc.Lead.ID
	}
	if snap, err := json.Marshal(tc); err == nil {
		exec.Data = snap
	}

	flat := Flatten(tc)
	for _, st := range wf.Steps {
		if !st.IsActive || !Match(st.Conditions, flat) {
			continue
		}
		if err := x.runStep(ctx, wf, st, tc); err != nil {
			exec.Status = ExecutionFailed
			exec.Error = fmt.Sprintf("step %d (%s): %v", st.StepOrder, st.StepType, err)
			break
		}
		exec.StepsRun++
	}
	exec.ExecutedAt = x.clock().UTC()
	return exec
}

func (x *Executor) runStep(ctx context.Context, wf Workflow, st Step, tc TriggerContext) error {
	switch st.StepType {
	case StepUpdateDeal:
		return x.updateDeal(ctx, wf, st, tc)
	case StepCreateTask:
		return x.createTask(ctx, wf, st, tc)
	case StepSendEmail:
		return x.sendEmail(ctx, wf, st, tc)
	case StepWebhook:
		x.webhook(ctx, wf, st, tc)
		return nil
	case StepWait:
		// Delays are not scheduled; the next step runs immediately.
		return nil
	}
	return fmt.Errorf("unknown step type %q", st.StepType)
}

func (x *Executor) updateDeal(ctx context.Context, wf Workflow, st Step, tc TriggerContext) error {
	if tc.DealID == "" {
		return errors.New("trigger context has no deal")
	}
	if x.deps.Deals == nil {
		return errors.New("deals not configured")
	}
	var cfg updateDealConfig
	if err := decodeConfig(st.StepConfig, &cfg); err != nil {
		return err
	}
	_, applied, err := x.deps.Deals.Patch(ctx, wf.TenantID, tc.DealID, cfg.Fields)
	if err != nil {
		return err
	}
	if x.deps.Activity != nil {
		if err := x.deps.Activity.LogDealUpdated(ctx, wf.TenantID, tc.DealID, wf.ID,
			fmt.Sprintf("workflow %s updated %v", wf.Name, applied), cfg.Fields); err != nil {
			logger.From(ctx).Warn("activity log failed", "workflow_id", wf.ID, "error", err)
		}
	}
	return nil
}

func (x *Executor) createTask(ctx context.Context, wf Workflow, st Step, tc TriggerContext) error {
	if x.deps.Activity == nil {
		return errors.New("activity log not configured")
	}
	var cfg createTaskConfig
	if err := decodeConfig(st.StepConfig, &cfg); err != nil {
		return err
	}
	title := cfg.Title
	if tc.Lead != nil {
		title = templates.Render(title, templates.LeadVariables(*tc.Lead))
	}
	details := map[string]any{}
	if cfg.Assignee != "" {
		details["assignee"] = cfg.Assignee
	}
	if cfg.DueInDays > 0 {
		details["due_at"] = x.clock().UTC().AddDate(0, 0, cfg.DueInDays).Format(time.RFC3339)
	}
	if cfg.Notes != "" {
		details["notes"] = cfg.Notes
	}
	return x.deps.Activity.LogTaskCreated(ctx, wf.TenantID, tc.DealID, wf.ID, title, details)
}

// sendEmail only enqueues; the outreach queue processor delivers.
func (x *Executor) sendEmail(ctx context.Context, wf Workflow, st Step, tc TriggerContext) error {
	if tc.Lead == nil || tc.Lead.Email == "" {
		return errors.New("trigger context has no lead email")
	}
	if x.deps.Emails == nil {
		return errors.New("email queue not configured")
	}
	var cfg sendEmailConfig
	if err := decodeConfig(st.StepConfig, &cfg); err != nil {
		return err
	}
	vars := templates.LeadVariables(*tc.Lead)
	_, err := x.deps.Emails.Enqueue(ctx, outreach.Email{
		TenantID:   wf.TenantID,
		WorkflowID: wf.ID,
		TemplateID: cfg.TemplateID,
		LeadID:     tc.Lead.ID,
		ToEmail:    tc.Lead.Email,
		ToName:     tc.Lead.FullName(),
		Subject:    templates.Render(cfg.Subject, vars),
		Body:       templates.Render(cfg.Content, vars),
	})
	return err
}

// webhook is best-effort: every failure is logged and swallowed, without retry.
func (x *Executor) webhook(ctx context.Context, wf Workflow, st Step, tc TriggerContext) {
	log := logger.From(ctx).With("tenant_id", wf.TenantID, "workflow_id", wf.ID)

	var cfg webhookConfig
	if err := decodeConfig(st.StepConfig, &cfg); err != nil {
		log.Warn("webhook config invalid", "error", err)
		return
	}
	body, err := json.Marshal(map[string]any{
		"workflow_id": wf.ID,
		"context":     tc,
	})
	if err != nil {
		log.Warn("webhook payload encode failed", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		log.Warn("webhook request invalid", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Emex-Workflow-Id", wf.ID)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := x.deps.HTTP.Do(req)
	if err != nil {
		log.Warn("webhook delivery failed", "url", cfg.URL, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("webhook rejected", "url", cfg.URL, "status", resp.StatusCode)
	}
}
