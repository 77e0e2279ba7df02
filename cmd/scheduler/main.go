// Command scheduler runs the periodic sweeps: due sequence steps, queued
// workflow emails and time-based workflows. Several replicas may run at once;
// a Redis lock per tenant and sweep keeps them from working the same tenant.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emex-dashboard/internal/app"
	"emex-dashboard/internal/config"
	"emex-dashboard/internal/database"
	"emex-dashboard/internal/metrics"
	"emex-dashboard/internal/scheduler"
	"emex-dashboard/pkg/logger"
	"emex-dashboard/pkg/utils"

	"github.com/joho/godotenv"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env).With("component", "scheduler")
	slog.SetDefault(log)

	db, err := database.Open(rootCtx, cfg.DB)
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(rootCtx, db); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()
	repos := app.PostgresRepos(db)
	a, err := app.New(cfg, repos, m, log, app.Options{})
	if err != nil {
		log.Error("app init failed", "err", err)
		os.Exit(1)
	}

	s := scheduler.New(scheduler.Deps{
		SequenceTenants: repos.Sequences,
		Sequences:       a.Runner,
		QueueTenants:    repos.Emails,
		Queue:           a.Queue,
		TriggerTenants:  repos.Workflows,
		TimeBased:       a.Executor,
		Redis:           rdb,
		Metrics:         m,
	}, scheduler.Options{
		SequenceSpec:  cfg.Scheduler.SequenceSpec,
		QueueSpec:     cfg.Scheduler.QueueSpec,
		TimeBasedSpec: cfg.Scheduler.TimeBasedSpec,
		BatchSize:     cfg.Scheduler.BatchSize,
		LockTTL:       2 * cfg.Scheduler.ClaimLease,
	}, log)
	if err := s.Start(rootCtx); err != nil {
		log.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}

	// Metrics only; the scheduler serves no API.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "err", err)
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics shutdown failed", "err", err)
	}
	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
