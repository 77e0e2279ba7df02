package database

import (
	"regexp"
	"strings"
	"testing"

	"emex-dashboard/internal/config"
)

func TestDSN(t *testing.T) {
	got := DSN(config.DBConfig{Host: "db", Port: 5432, User: "emex", Password: "p@ss word", Name: "emex", SSLMode: "disable"})
	want := "postgres://emex:p%40ss%20word@db:5432/emex?sslmode=disable"
	if got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}

func TestMigrationsCreateAllTables(t *testing.T) {
	tables := []string{
		"leads",
		"sequences",
		"sequence_enrollments",
		"outreach_emails",
		"workflows",
		"workflow_steps",
		"workflow_executions",
		"deals",
		"activity_log",
	}
	created := map[string]bool{}
	re := regexp.MustCompile(`CREATE TABLE (\w+)`)
	for _, group := range migrations {
		for _, stmt := range group {
			if m := re.FindStringSubmatch(stmt); m != nil {
				if created[m[1]] {
					t.Fatalf("table %q created twice", m[1])
				}
				created[m[1]] = true
			}
		}
	}
	for _, table := range tables {
		if !created[table] {
			t.Errorf("table %q not created by any migration", table)
		}
	}
}

func TestMigrationsAreTenantScoped(t *testing.T) {
	re := regexp.MustCompile(`CREATE TABLE (\w+)`)
	for v, group := range migrations {
		for _, stmt := range group {
			m := re.FindStringSubmatch(stmt)
			if m == nil {
				continue
			}
			if !strings.Contains(stmt, "tenant_id TEXT NOT NULL") {
				t.Errorf("migration %d: table %s has no tenant_id", v+1, m[1])
			}
		}
	}
}

func TestMigrationsHaveClaimColumns(t *testing.T) {
	all := ""
	for _, group := range migrations {
		all += strings.Join(group, "\n")
	}
	for _, col := range []string{"locked_until TIMESTAMPTZ", "lock_token TEXT"} {
		if strings.Count(all, col) != 2 {
			t.Errorf("expected %q on enrollments and outreach emails", col)
		}
	}
	if Versions() != len(migrations) {
		t.Fatalf("Versions mismatch")
	}
}
