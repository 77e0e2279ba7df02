// Package scheduler drives the periodic sweeps.
//
// Each sweep lists the tenants with pending work and runs the per-tenant
// operation under a Redis lock, so at most one process works a tenant's sweep
// at a time. The row-level claim in each repository still guards against
// duplicate sends when the lock expires mid-sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"emex-dashboard/internal/metrics"
	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/sequences"
	"emex-dashboard/internal/workflows"
	"emex-dashboard/pkg/logger"
	"emex-dashboard/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	SweepSequences = "sequences"
	SweepQueue     = "outreach_queue"
	SweepTimeBased = "time_based"
)

type SequenceTenants interface {
	DueTenants(ctx context.Context, now time.Time) ([]string, error)
}

type SequenceRunner interface {
	RunDue(ctx context.Context, tenantID string, now time.Time, limit int) ([]sequences.Result, error)
}

type QueueTenants interface {
	TenantsWithQueued(ctx context.Context, now time.Time) ([]string, error)
}

type QueueRunner interface {
	ProcessQueued(ctx context.Context, tenantID string, now time.Time, limit int) ([]outreach.QueueResult, error)
}

type TriggerTenants interface {
	TenantsWithTrigger(ctx context.Context, triggerType string) ([]string, error)
}

type TimeBasedRunner interface {
	RunTimeBased(ctx context.Context, tenantID string, now time.Time) ([]string, error)
}

// Evictor drops idle rate-limit state.
type Evictor interface {
	Evict(now time.Time) int
}

type Deps struct {
	SequenceTenants SequenceTenants
	Sequences       SequenceRunner
	QueueTenants    QueueTenants
	Queue           QueueRunner
	TriggerTenants  TriggerTenants
	TimeBased       TimeBasedRunner
	Limiter         Evictor

	// Redis is optional. Without it sweeps rely on the row claim alone.
	Redis   *redis.Client
	Metrics *metrics.Metrics
}

type Options struct {
	SequenceSpec  string
	QueueSpec     string
	TimeBasedSpec string
	EvictSpec     string

	BatchSize int
	// LockTTL bounds how long a crashed process can hold a tenant's sweep lock.
	// It is raised to at least SweepTimeout plus a minute.
	LockTTL time.Duration
	// SweepTimeout bounds one cron tick.
	SweepTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SequenceSpec == "" {
		o.SequenceSpec = "@every 1m"
	}
	if o.QueueSpec == "" {
		o.QueueSpec = "@every 1m"
	}
	if o.TimeBasedSpec == "" {
		o.TimeBasedSpec = "@every 15m"
	}
	if o.EvictSpec == "" {
		o.EvictSpec = "@every 5m"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.SweepTimeout <= 0 {
		o.SweepTimeout = 10 * time.Minute
	}
	// The lock must outlive the sweep it guards.
	if o.LockTTL < o.SweepTimeout+lockGrace {
		o.LockTTL = o.SweepTimeout + lockGrace
	}
	return o
}

// Report summarizes one sweep across tenants.
type Report struct {
	Sweep   string `json:"sweep"`
	Tenants int    `json:"tenants"`
	// Locked counts tenants skipped because another process held the lock.
	Locked int `json:"locked"`
	Items  int `json:"items"`
	Failed int `json:"failed"`
}

type Scheduler struct {
	deps  Deps
	opts  Options
	log   *slog.Logger
	cron  *cron.Cron
	clock func() time.Time
}

func New(deps Deps, opts Options, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{deps: deps, opts: opts.withDefaults(), log: log, clock: time.Now}
}

// Start registers the sweeps on a cron and starts it. Overlapping ticks of the
// same job are skipped rather than queued.
func (s *Scheduler) Start(ctx context.Context) error {
	cl := cron.PrintfLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelInfo))
	s.cron = cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	jobs := []struct {
		spec string
		name string
		on   bool
		run  func(context.Context, time.Time) (Report, error)
	}{
		{s.opts.SequenceSpec, SweepSequences, s.deps.SequenceTenants != nil && s.deps.Sequences != nil, s.RunSequencesOnce},
		{s.opts.QueueSpec, SweepQueue, s.deps.QueueTenants != nil && s.deps.Queue != nil, s.RunQueueOnce},
		{s.opts.TimeBasedSpec, SweepTimeBased, s.deps.TriggerTenants != nil && s.deps.TimeBased != nil, s.RunTimeBasedOnce},
	}
	var enabled []string
	for _, j := range jobs {
		j := j
		// A process without the sweep's deps (the API server) only evicts.
		if !j.on {
			continue
		}
		enabled = append(enabled, j.name)
		if _, err := s.cron.AddFunc(j.spec, func() { s.tick(ctx, j.name, j.run) }); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}
	if s.deps.Limiter != nil {
		if _, err := s.cron.AddFunc(s.opts.EvictSpec, func() {
			n := s.deps.Limiter.Evict(s.clock())
			s.log.Debug("rate limiter evicted idle keys", "evicted", n)
		}); err != nil {
			return fmt.Errorf("schedule limiter eviction: %w", err)
		}
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		"sweeps", enabled,
		"sequence_spec", s.opts.SequenceSpec,
		"queue_spec", s.opts.QueueSpec,
		"time_based_spec", s.opts.TimeBasedSpec,
	)
	return nil
}

// Stop stops the cron and waits for running sweeps until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) tick(parent context.Context, name string, run func(context.Context, time.Time) (Report, error)) {
	ctx, cancel := context.WithTimeout(parent, s.opts.SweepTimeout)
	defer cancel()
	ctx = logger.With(ctx, s.log)

	start := s.clock()
	rep, err := run(ctx, start)
	s.deps.Metrics.ObserveSweep(name, time.Since(start))
	if err != nil {
		s.log.Error("sweep finished with errors", "sweep", name, "error", err, "tenants", rep.Tenants, "items", rep.Items)
		return
	}
	s.log.Info("sweep finished", "sweep", name, "tenants", rep.Tenants, "locked", rep.Locked, "items", rep.Items, "failed", rep.Failed)
}

// RunSequencesOnce runs the sequence sweep for every tenant with due enrollments.
func (s *Scheduler) RunSequencesOnce(ctx context.Context, now time.Time) (Report, error) {
	if s.deps.SequenceTenants == nil || s.deps.Sequences == nil {
		return Report{Sweep: SweepSequences}, errors.New("scheduler: sequence sweep not configured")
	}
	tenants, err := s.deps.SequenceTenants.DueTenants(ctx, now)
	if err != nil {
		return Report{Sweep: SweepSequences}, fmt.Errorf("list due tenants: %w", err)
	}
	return s.forEachTenant(ctx, SweepSequences, tenants, func(ctx context.Context, tenantID string) (int, int, error) {
		results, err := s.deps.Sequences.RunDue(ctx, tenantID, now, s.opts.BatchSize)
		if err != nil {
			return 0, 0, err
		}
		sum := sequences.Summarize(results)
		return len(results), sum.Failed, nil
	})
}

// RunQueueOnce delivers queued workflow emails for every tenant that has some.
func (s *Scheduler) RunQueueOnce(ctx context.Context, now time.Time) (Report, error) {
	if s.deps.QueueTenants == nil || s.deps.Queue == nil {
		return Report{Sweep: SweepQueue}, errors.New("scheduler: queue sweep not configured")
	}
	tenants, err := s.deps.QueueTenants.TenantsWithQueued(ctx, now)
	if err != nil {
		return Report{Sweep: SweepQueue}, fmt.Errorf("list queued tenants: %w", err)
	}
	return s.forEachTenant(ctx, SweepQueue, tenants, func(ctx context.Context, tenantID string) (int, int, error) {
		results, err := s.deps.Queue.ProcessQueued(ctx, tenantID, now, s.opts.BatchSize)
		if err != nil {
			return 0, 0, err
		}
		failed := 0
		for _, r := range results {
			if r.Outcome != outreach.QueueSent {
				failed++
			}
		}
		return len(results), failed, nil
	})
}

// RunTimeBasedOnce fires due time-based workflows for every tenant that has one.
func (s *Scheduler) RunTimeBasedOnce(ctx context.Context, now time.Time) (Report, error) {
	if s.deps.TriggerTenants == nil || s.deps.TimeBased == nil {
		return Report{Sweep: SweepTimeBased}, errors.New("scheduler: time-based sweep not configured")
	}
	tenants, err := s.deps.TriggerTenants.TenantsWithTrigger(ctx, workflows.TriggerTimeBased)
	if err != nil {
		return Report{Sweep: SweepTimeBased}, fmt.Errorf("list time-based tenants: %w", err)
	}
	return s.forEachTenant(ctx, SweepTimeBased, tenants, func(ctx context.Context, tenantID string) (int, int, error) {
		fired, err := s.deps.TimeBased.RunTimeBased(ctx, tenantID, now)
		return len(fired), 0, err
	})
}

// forEachTenant runs fn per tenant under that tenant's sweep lock. A failing
// tenant never stops the others; their errors are joined.
func (s *Scheduler) forEachTenant(ctx context.Context, sweep string, tenants []string, fn func(context.Context, string) (int, int, error)) (Report, error) {
	rep := Report{Sweep: sweep}
	var errs []error
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		ok, release, err := s.lock(ctx, sweep, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: lock: %w", tenantID, err))
			continue
		}
		if !ok {
			rep.Locked++
			continue
		}

		tctx := logger.With(ctx, logger.From(ctx).With("tenant_id", tenantID, "sweep", sweep))
		items, failed, err := fn(tctx, tenantID)
		release()

		rep.Tenants++
		rep.Items += items
		rep.Failed += failed
		if err != nil {
			logger.From(tctx).Warn("tenant sweep failed", "error", err)
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
	}
	return rep, errors.Join(errs...)
}

const lockGrace = time.Minute

func lockKey(sweep, tenantID string) string {
	return "emex:sweep:" + sweep + ":" + tenantID
}

func (s *Scheduler) lock(ctx context.Context, sweep, tenantID string) (bool, func(), error) {
	if s.deps.Redis == nil {
		return true, func() {}, nil
	}
	key := lockKey(sweep, tenantID)
	token, err := utils.AcquireLock(ctx, s.deps.Redis, key, s.opts.LockTTL)
	if err != nil || token == "" {
		return false, nil, err
	}
	return true, func() {
		// Release on a fresh context so a cancelled sweep still frees the lock.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		released, err := utils.ReleaseLock(rctx, s.deps.Redis, key, token)
		switch {
		case err != nil:
			s.log.Warn("release sweep lock", "key", key, "error", err)
		case !released:
			s.log.Warn("sweep lock expired before release", "key", key)
		}
	}, nil
}
