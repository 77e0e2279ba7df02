package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"emex-dashboard/internal/audit"
	"emex-dashboard/internal/config"
	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/leads"
	"emex-dashboard/internal/metrics"
	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/sequences"
	"emex-dashboard/internal/workflows"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.App.PublicBaseURL = "https://app.example.com"
	cfg.Tracking.SigningSecret = "secret"
	cfg.Mail.FromEmail = "noreply@example.com"
	cfg.Mail.FromName = "Emex"
	cfg.Scheduler.ClaimLease = time.Minute
	cfg.Scheduler.RetryBackoff = time.Hour
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(testConfig(), MemoryRepos(), metrics.New(), slog.Default(), Options{Mailer: outreach.NewLogMailer(slog.Default())})
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	t.Run("Error - unknown mail provider", func(t *testing.T) {
		cfg := testConfig()
		cfg.Mail.Provider = "carrier-pigeon"
		_, err := New(cfg, MemoryRepos(), nil, slog.Default(), Options{})
		assert.Error(t, err)
	})

	t.Run("Success - handlers share the services", func(t *testing.T) {
		a := newTestApp(t)
		h := a.Handlers(25)
		assert.Same(t, a.Leads, h.Leads)
		assert.Same(t, a.Runner, h.Runner)
		assert.Same(t, a.Executor, h.Executor)
		assert.Equal(t, 25, h.BatchSize)

		th := a.TrackingHandler()
		assert.Same(t, a.Tracker, th.Tracker)
	})
}

func TestSequenceSendIsRecorded(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	lead, err := a.Leads.Create(ctx, "t1", leads.Lead{FirstName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	seq, err := a.Sequences.CreateSequence(ctx, "t1", "Intro", []sequences.Step{
		{Subject: "Hi {{first_name}}", Content: `<p>See <a href="https://example.com/docs">docs</a></p>`},
	})
	require.NoError(t, err)
	_, err = a.Sequences.Enroll(ctx, "t1", seq.ID, []string{lead.ID}, true)
	require.NoError(t, err)

	results, err := a.Runner.RunDue(ctx, "t1", time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sequences.Summarize(results).Sent)

	mem := a.Repos.Emails.(*outreach.MemoryRepo)
	sent := mem.All("t1")
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi Ada", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "https://example.com/docs")
	assert.Empty(t, mem.All("t2"))
}

func TestDealEventsReachTheExecutor(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, err := a.Workflows.Create(ctx, "t1", workflows.Workflow{
		Name:        "Kickoff",
		TriggerType: workflows.TriggerDealCreated,
		IsActive:    true,
		Steps: []workflows.Step{{
			StepOrder:  1,
			StepType:   workflows.StepType("create_task"),
			StepConfig: json.RawMessage(`{"title":"Kickoff call"}`),
			IsActive:   true,
		}},
	})
	require.NoError(t, err)

	_, err = a.Deals.Create(ctx, "t1", deals.Deal{Title: "Acme"})
	require.NoError(t, err)

	execs := a.Repos.Workflows.(*workflows.MemoryRepo).Executions("t1")
	require.Len(t, execs, 1)
	assert.Equal(t, workflows.ExecutionCompleted, execs[0].Status)

	var tasks int
	for _, e := range a.Repos.Activity.(*audit.MemoryRepo).Events() {
		if e.Type == audit.EventTypeTaskCreated {
			tasks++
		}
	}
	assert.Equal(t, 1, tasks)
}
