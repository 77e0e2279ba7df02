// Package app wires repositories and services for the binaries.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"emex-dashboard/internal/audit"
	"emex-dashboard/internal/compose"
	"emex-dashboard/internal/config"
	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/httpapi"
	"emex-dashboard/internal/leads"
	"emex-dashboard/internal/metrics"
	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/reporting"
	"emex-dashboard/internal/sequences"
	"emex-dashboard/internal/workflows"
)

// Repos is the full persistence layer.
type Repos struct {
	Leads     leads.Repository
	Sequences sequences.Repository
	Workflows workflows.Repository
	Emails    outreach.Repository
	Deals     deals.Repository
	Activity  audit.Repository
}

func PostgresRepos(db *sql.DB) Repos {
	return Repos{
		Leads:     leads.NewPostgresRepo(db),
		Sequences: sequences.NewPostgresRepo(db),
		Workflows: workflows.NewPostgresRepo(db),
		Emails:    outreach.NewPostgresRepo(db),
		Deals:     deals.NewPostgresRepo(db),
		Activity:  audit.NewPostgresRepo(db),
	}
}

// MemoryRepos backs every service with in-process storage.
func MemoryRepos() Repos {
	return Repos{
		Leads:     leads.NewMemoryRepo(),
		Sequences: sequences.NewMemoryRepo(),
		Workflows: workflows.NewMemoryRepo(),
		Emails:    outreach.NewMemoryRepo(),
		Deals:     deals.NewMemoryRepo(),
		Activity:  audit.NewMemoryRepo(),
	}
}

type App struct {
	Repos Repos

	Leads     *leads.Service
	Sequences *sequences.Service
	Runner    *sequences.Runner
	Workflows *workflows.Service
	Executor  *workflows.Executor
	Deals     *deals.Service
	Emails    *outreach.Service
	Queue     *outreach.QueueProcessor
	Tracker   *outreach.Tracker
	Drafter   *compose.Drafter
	Reporting *reporting.Service
	Activity  *audit.Service
	Metrics   *metrics.Metrics
}

// Options lets callers swap the provider boundary, mostly for tests.
type Options struct {
	Mailer outreach.Mailer
	HTTP   workflows.HTTPDoer
}

func New(cfg config.Config, repos Repos, m *metrics.Metrics, log *slog.Logger, opts Options) (*App, error) {
	mailer := opts.Mailer
	if mailer == nil {
		var err error
		if mailer, err = outreach.NewMailer(cfg.Mail, log); err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
	}
	tracker := outreach.NewTracker(cfg.App.PublicBaseURL, cfg.Tracking.SigningSecret)
	delivery := outreach.NewDelivery(mailer, tracker, cfg.Mail.FromEmail, cfg.Mail.FromName).WithMetrics(m)

	activity := audit.NewService(repos.Activity)
	emails := outreach.NewService(repos.Emails)
	dealSvc := deals.NewService(repos.Deals, nil)

	exec := workflows.NewExecutor(repos.Workflows, workflows.Deps{
		Deals:    dealSvc,
		Activity: activity,
		Emails:   emails,
		Leads:    repos.Leads,
		HTTP:     opts.HTTP,
		Metrics:  m,
	})
	dealSvc.SetSink(exec)

	runner := sequences.NewRunner(repos.Sequences, repos.Leads, delivery, emails, sequences.RunnerOptions{
		Lease:        cfg.Scheduler.ClaimLease,
		RetryBackoff: cfg.Scheduler.RetryBackoff,
		MaxAttempts:  cfg.Scheduler.MaxSendAttempts,
	}).WithMetrics(m).WithActivity(activity)

	queue := outreach.NewQueueProcessor(repos.Emails, delivery, outreach.QueueOptions{
		Lease:        cfg.Scheduler.ClaimLease,
		RetryBackoff: cfg.Scheduler.RetryBackoff,
	}, m)

	return &App{
		Repos:     repos,
		Leads:     leads.NewService(repos.Leads),
		Sequences: sequences.NewService(repos.Sequences, repos.Leads),
		Runner:    runner,
		Workflows: workflows.NewService(repos.Workflows),
		Executor:  exec,
		Deals:     dealSvc,
		Emails:    emails,
		Queue:     queue,
		Tracker:   tracker,
		Drafter:   compose.NewDrafter(cfg.OpenAI),
		Reporting: reporting.NewService(reporting.Sources{Emails: repos.Emails, Deals: repos.Deals}),
		Activity:  activity,
		Metrics:   m,
	}, nil
}

func (a *App) Handlers(batchSize int) httpapi.Handlers {
	return httpapi.Handlers{
		Leads:     a.Leads,
		Sequences: a.Sequences,
		Runner:    a.Runner,
		Workflows: a.Workflows,
		Executor:  a.Executor,
		Deals:     a.Deals,
		Emails:    a.Emails,
		Queue:     a.Queue,
		Drafter:   a.Drafter,
		Reporting: a.Reporting,
		Activity:  a.Activity,
		BatchSize: batchSize,
	}
}

func (a *App) TrackingHandler() outreach.TrackingHandler {
	return outreach.TrackingHandler{Service: a.Emails, Tracker: a.Tracker, Metrics: a.Metrics}
}
