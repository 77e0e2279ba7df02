package workflows

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"emex-dashboard/internal/audit"
	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/leads"
	"emex-dashboard/internal/outreach"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *MemoryRepo
	svc      *Service
	exec     *Executor
	deals    *deals.Service
	activity *audit.MemoryRepo
	emails   *outreach.MemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     NewMemoryRepo(),
		activity: audit.NewMemoryRepo(),
		emails:   outreach.NewMemoryRepo(),
	}
	f.svc = NewService(f.repo)
	f.svc.clock = func() time.Time { return t0 }
	f.deals = deals.NewService(deals.NewMemoryRepo(), nil)
	f.exec = NewExecutor(f.repo, Deps{
		Deals:    f.deals,
		Activity: audit.NewService(f.activity),
		Emails:   outreach.NewService(f.emails),
	})
	f.exec.clock = func() time.Time { return t0 }
	f.deals.SetSink(f.exec)
	return f
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func (f *fixture) create(t *testing.T, tenantID string, w Workflow) Workflow {
	t.Helper()
	w.IsActive = true
	got, err := f.svc.Create(context.Background(), tenantID, w)
	require.NoError(t, err)
	return got
}

func TestService_CreateValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "t1", Workflow{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Create(ctx, "t1", Workflow{Name: "x", TriggerType: "deal_created", Steps: []Step{{StepType: "sms"}}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Create(ctx, "t1", Workflow{Name: "x", TriggerType: "deal_created", Steps: []Step{
		{StepType: StepWebhook, StepConfig: raw(t, map[string]any{"url": "ftp://x"})},
	}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Create(ctx, "t1", Workflow{Name: "x", TriggerType: "deal_created", Steps: []Step{
		{StepType: StepWait, Conditions: []Condition{{Field: "deal_id", Op: "gt"}}},
	}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Create(ctx, "t1", Workflow{Name: "x", TriggerType: TriggerTimeBased, TriggerConfig: raw(t, map[string]any{"delay_days": 0})})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestExecutor_UnreachableWebhookStillCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	wf := f.create(t, "t1", Workflow{Name: "Notify", TriggerType: TriggerDealCreated, Steps: []Step{
		{StepOrder: 1, StepType: StepWebhook, IsActive: true, StepConfig: raw(t, map[string]any{"url": url})},
	}})

	execs, err := f.exec.Trigger(ctx, "t1", TriggerDealCreated, TriggerContext{DealID: "d1"})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionCompleted, execs[0].Status)
	assert.Equal(t, []string{wf.ID}, ExecutedIDs(execs))

	recorded := f.repo.Executions("t1")
	require.Len(t, recorded, 1)
	assert.Equal(t, ExecutionCompleted, recorded[0].Status)
	assert.Equal(t, wf.ID, recorded[0].WorkflowID)
}

func TestExecutor_WebhookPayload(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var got map[string]any
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		_ = json.Unmarshal(body, &got)
		header = r.Header.Get("X-Api-Key")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wf := f.create(t, "t1", Workflow{Name: "Hook", TriggerType: "manual", Steps: []Step{
		{StepOrder: 1, StepType: StepWebhook, IsActive: true, StepConfig: raw(t, map[string]any{
			"url": srv.URL, "headers": map[string]string{"X-Api-Key": "k"},
		})},
	}})

	execs, err := f.exec.Trigger(context.Background(), "t1", "manual", TriggerContext{DealID: "d9", Data: map[string]any{"source": "api"}})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionCompleted, execs[0].Status, "non-2xx responses are swallowed")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, wf.ID, got["workflow_id"])
	ctxMap, _ := got["context"].(map[string]any)
	assert.Equal(t, "d9", ctxMap["deal_id"])
	assert.Equal(t, "k", header)
}

func TestExecutor_StepsRunInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.deals.Create(ctx, "t1", deals.Deal{Title: "Acme"})
	require.NoError(t, err)

	lead := &leads.Lead{ID: "l1", TenantID: "t1", FirstName: "Jane", Email: "jane@acme.com", Company: "Acme"}
	f.create(t, "t1", Workflow{Name: "Qualify", TriggerType: "manual", Steps: []Step{
		{StepOrder: 3, StepType: StepSendEmail, IsActive: true, StepConfig: raw(t, map[string]any{
			"subject": "Welcome {{first_name}}", "content": "<p>Hi {{company}}</p>", "template_id": "tpl-1",
		})},
		{StepOrder: 1, StepType: StepUpdateDeal, IsActive: true, StepConfig: raw(t, map[string]any{
			"fields": map[string]any{"stage": "qualified", "priority": "high"},
		})},
		{StepOrder: 2, StepType: StepWait, IsActive: true, StepConfig: raw(t, map[string]any{"days": 2})},
		{StepOrder: 4, StepType: StepCreateTask, IsActive: true, StepConfig: raw(t, map[string]any{
			"title": "Call {{first_name}}", "due_in_days": 1,
		})},
		{StepOrder: 5, StepType: StepCreateTask, IsActive: false, StepConfig: raw(t, map[string]any{"title": "never"})},
	}})

	execs, err := f.exec.Trigger(ctx, "t1", "manual", TriggerContext{DealID: d.ID, Lead: lead})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, ExecutionCompleted, execs[0].Status)
	assert.Equal(t, 4, execs[0].StepsRun)
	assert.Equal(t, "l1", execs[0].LeadID)

	var snap TriggerContext
	require.NoError(t, json.Unmarshal(execs[0].Data, &snap))
	assert.Equal(t, d.ID, snap.DealID)
	require.NotNil(t, snap.Lead)
	assert.Equal(t, "jane@acme.com", snap.Lead.Email)

	updated, err := f.deals.Get(ctx, "t1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, deals.StageQualified, updated.Stage)
	assert.Equal(t, "high", updated.Properties["priority"])

	queued := f.emails.All("t1")
	require.Len(t, queued, 1)
	assert.Equal(t, outreach.StatusQueued, queued[0].Status)
	assert.Equal(t, "Welcome Jane", queued[0].Subject)
	assert.Equal(t, "<p>Hi Acme</p>", queued[0].Body)
	assert.Equal(t, "tpl-1", queued[0].TemplateID)
	assert.Nil(t, queued[0].SentAt)

	evs, _ := f.activity.List(ctx, "t1", audit.Filter{})
	types := make([]audit.EventType, 0, len(evs))
	for i := len(evs) - 1; i >= 0; i-- {
		types = append(types, evs[i].Type)
	}
	assert.Equal(t, []audit.EventType{
		audit.EventTypeDealUpdated,
		audit.EventTypeTaskCreated,
		audit.EventTypeWorkflowExecuted,
	}, types)
	assert.Equal(t, "Call Jane", evs[1].Message)
}

func TestExecutor_FailingWorkflowIsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := f.create(t, "t1", Workflow{Name: "Bad", TriggerType: "manual", Steps: []Step{
		{StepOrder: 1, StepType: StepUpdateDeal, IsActive: true, StepConfig: raw(t, map[string]any{"fields": map[string]any{"stage": "won"}})},
		{StepOrder: 2, StepType: StepCreateTask, IsActive: true, StepConfig: raw(t, map[string]any{"title": "unreached"})},
	}})
	good := f.create(t, "t1", Workflow{Name: "Good", TriggerType: "manual", Steps: []Step{
		{StepOrder: 1, StepType: StepCreateTask, IsActive: true, StepConfig: raw(t, map[string]any{"title": "follow up"})},
	}})

	// No deal in context: update_deal fails.
	execs, err := f.exec.Trigger(ctx, "t1", "manual", TriggerContext{})
	require.NoError(t, err)
	require.Len(t, execs, 2)

	byID := map[string]Execution{}
	for _, e := range execs {
		byID[e.WorkflowID] = e
	}
	assert.Equal(t, ExecutionFailed, byID[bad.ID].Status)
	assert.Contains(t, byID[bad.ID].Error, "update_deal")
	assert.Equal(t, 0, byID[bad.ID].StepsRun)
	assert.Equal(t, ExecutionCompleted, byID[good.ID].Status)

	tasks, _ := f.activity.List(ctx, "t1", audit.Filter{Type: audit.EventTypeTaskCreated})
	require.Len(t, tasks, 1)
	assert.Equal(t, "follow up", tasks[0].Message)
	assert.Len(t, f.repo.Executions("t1"), 2)
}

func TestExecutor_Conditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "t1", Workflow{Name: "Cond", TriggerType: "manual", Steps: []Step{
		{StepOrder: 1, StepType: StepCreateTask, IsActive: true,
			StepConfig: raw(t, map[string]any{"title": "hot lead"}),
			Conditions: []Condition{{Field: "lead.score", Op: "eq", Value: 60.0}, {Field: "data.deal.stage", Op: "neq", Value: "lost"}}},
		{StepOrder: 2, StepType: StepCreateTask, IsActive: true,
			StepConfig: raw(t, map[string]any{"title": "has phone"}),
			Conditions: []Condition{{Field: "lead.phone", Op: "exists"}}},
	}})

	lead := &leads.Lead{ID: "l1", TenantID: "t1", Email: "a@b.co", Score: 60}
	execs, err := f.exec.Trigger(ctx, "t1", "manual", TriggerContext{Lead: lead, Data: map[string]any{"deal": map[string]any{"stage": "won"}}})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, 1, execs[0].StepsRun)

	tasks, _ := f.activity.List(ctx, "t1", audit.Filter{Type: audit.EventTypeTaskCreated})
	require.Len(t, tasks, 1)
	assert.Equal(t, "hot lead", tasks[0].Message)
}

func TestExecutor_DealEventsTriggerWorkflows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "t1", Workflow{Name: "On won", TriggerType: TriggerDealStageChanged, Steps: []Step{
		{StepOrder: 1, StepType: StepCreateTask, IsActive: true,
			StepConfig: raw(t, map[string]any{"title": "send invoice"}),
			Conditions: []Condition{{Field: "data.to_stage", Op: "eq", Value: "won"}}},
	}})

	d, err := f.deals.Create(ctx, "t1", deals.Deal{Title: "Acme"})
	require.NoError(t, err)
	_, err = f.deals.UpdateStage(ctx, "t1", d.ID, deals.StageProposal)
	require.NoError(t, err)
	_, err = f.deals.UpdateStage(ctx, "t1", d.ID, deals.StageWon)
	require.NoError(t, err)

	execs := f.repo.Executions("t1")
	assert.Len(t, execs, 2)
	tasks, _ := f.activity.List(ctx, "t1", audit.Filter{Type: audit.EventTypeTaskCreated, DealID: d.ID})
	require.Len(t, tasks, 1)
	assert.Equal(t, "send invoice", tasks[0].Message)
}

func TestExecutor_TenantScoped(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t2", Workflow{Name: "Other", TriggerType: "manual", Steps: []Step{
		{StepOrder: 1, StepType: StepWait, IsActive: true},
	}})

	execs, err := f.exec.Trigger(context.Background(), "t1", "manual", TriggerContext{})
	require.NoError(t, err)
	assert.Empty(t, execs)

	_, err = f.exec.Trigger(context.Background(), "", "manual", TriggerContext{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestExecutor_RunTimeBased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	weekly := f.create(t, "t1", Workflow{Name: "Weekly digest", TriggerType: TriggerTimeBased})
	daily := f.create(t, "t1", Workflow{Name: "Daily", TriggerType: TriggerTimeBased, TriggerConfig: raw(t, map[string]any{"delay_days": 1})})
	paused := f.create(t, "t1", Workflow{Name: "Paused", TriggerType: TriggerTimeBased})
	require.NoError(t, f.svc.SetActive(ctx, "t1", paused.ID, false))

	fired, err := f.exec.RunTimeBased(ctx, "t1", t0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{weekly.ID, daily.ID}, fired)

	fired, err = f.exec.RunTimeBased(ctx, "t1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, fired, "at most once per window")

	fired, _ = f.exec.RunTimeBased(ctx, "t1", t0.AddDate(0, 0, 1))
	assert.Equal(t, []string{daily.ID}, fired)

	fired, _ = f.exec.RunTimeBased(ctx, "t1", t0.AddDate(0, 0, 7))
	assert.ElementsMatch(t, []string{weekly.ID, daily.ID}, fired)

	execs, err := f.svc.ListExecutions(ctx, "t1", weekly.ID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, ExecutionCompleted, execs[0].Status)
	assert.True(t, execs[0].ExecutedAt.Equal(t0.AddDate(0, 0, 7)))

	tenants, err := f.repo.TenantsWithTrigger(ctx, TriggerTimeBased)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, tenants)
}

func TestMatch(t *testing.T) {
	flat := Flatten(TriggerContext{
		DealID: "d1",
		Lead:   &leads.Lead{Email: "a@b.co", Score: 75},
		Data:   map[string]any{"plan": "pro", "meta": map[string]any{"seats": 5.0}},
	})
	assert.True(t, Match(nil, flat))
	assert.True(t, Match([]Condition{{Field: "deal_id", Op: "exists"}}, flat))
	assert.True(t, Match([]Condition{{Field: "lead.score", Op: "eq", Value: 75}}, flat))
	assert.True(t, Match([]Condition{{Field: "data.meta.seats", Op: "eq", Value: 5}}, flat))
	assert.True(t, Match([]Condition{{Field: "data.plan", Op: "neq", Value: "free"}}, flat))
	assert.True(t, Match([]Condition{{Field: "data.missing", Op: "neq", Value: "x"}}, flat))
	assert.False(t, Match([]Condition{{Field: "lead.company", Op: "exists"}}, flat))
	assert.False(t, Match([]Condition{{Field: "data.plan", Op: "eq", Value: "free"}}, flat))
	assert.False(t, Match([]Condition{{Field: "data.plan", Op: "contains", Value: "p"}}, flat))
}
