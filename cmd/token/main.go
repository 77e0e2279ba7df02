// Command token mints a service access token, typically for the scheduler
// role calling the cron endpoints from outside the cluster.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"emex-dashboard/internal/auth"
	"emex-dashboard/internal/config"
	"emex-dashboard/internal/rbac"
	"emex-dashboard/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	tenant := flag.String("tenant", "", "Tenant the token is scoped to (required)")
	role := flag.String("role", rbac.RoleScheduler, "Role claim")
	service := flag.String("service", "scheduler", "Service name, recorded as svc:<name> in the subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	if *tenant == "" {
		log.Error("missing -tenant")
		flag.Usage()
		os.Exit(2)
	}

	m, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	tok, err := m.IssueServiceToken(time.Now(), *service, *tenant, *role, *ttl)
	if err != nil {
		log.Error("issue token failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
