package reporting

import (
	"context"
	"math"
	"testing"
	"time"

	"emex-dashboard/internal/deals"
	"emex-dashboard/internal/outreach"
)

func TestReporting_TenantIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Emails = []outreach.Email{
		{ID: "e1", TenantID: "t1", Status: outreach.StatusSent, CreatedAt: now},
		{ID: "e2", TenantID: "t2", Status: outreach.StatusSent, CreatedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.OutreachSummary(context.Background(), OutreachSummaryRequest{TenantID: "t1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Total != 1 {
		t.Fatalf("expected 1 email, got %d", out.Total)
	}
}

func TestReporting_OutreachRates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	statuses := []outreach.Status{
		outreach.StatusQueued,
		outreach.StatusSent, outreach.StatusSent,
		outreach.StatusOpened,
		outreach.StatusClicked,
		outreach.StatusReplied,
		outreach.StatusBounced,
	}
	for i, st := range statuses {
		repo.Emails = append(repo.Emails, outreach.Email{ID: string(rune('a' + i)), TenantID: "t", SequenceID: "s1", Status: st, CreatedAt: now})
	}
	repo.Emails = append(repo.Emails, outreach.Email{ID: "other", TenantID: "t", SequenceID: "s2", Status: outreach.StatusReplied, CreatedAt: now})
	repo.Emails = append(repo.Emails, outreach.Email{ID: "old", TenantID: "t", SequenceID: "s1", Status: outreach.StatusReplied, CreatedAt: now.Add(-48 * time.Hour)})
	svc := NewService(repo)

	out, err := svc.OutreachSummary(context.Background(), OutreachSummaryRequest{
		TenantID: "t", SequenceID: "s1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Total != 7 || out.Queued != 1 || out.Sent != 2 || out.Bounced != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.Delivered != 5 {
		t.Fatalf("expected 5 delivered, got %d", out.Delivered)
	}
	assertRate(t, "open", out.OpenRate, 3.0/5)
	assertRate(t, "click", out.ClickRate, 2.0/5)
	assertRate(t, "reply", out.ReplyRate, 1.0/5)
	assertRate(t, "bounce", out.BounceRate, 1.0/6)
}

func TestReporting_RejectsBadRange(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Now()
	if _, err := svc.OutreachSummary(context.Background(), OutreachSummaryRequest{TenantID: "t", Range: TimeRange{From: now, To: now}}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := svc.OutreachSummary(context.Background(), OutreachSummaryRequest{Range: TimeRange{From: now, To: now.Add(time.Hour)}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestReporting_PipelineSummary(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Deals = []deals.Deal{
		{ID: "d1", TenantID: "t", Stage: deals.StageLead, Value: 100},
		{ID: "d2", TenantID: "t", Stage: deals.StageProposal, Value: 400},
		{ID: "d3", TenantID: "t", Stage: deals.StageWon, Value: 1000},
		{ID: "d4", TenantID: "t", Stage: deals.StageWon, Value: 500},
		{ID: "d5", TenantID: "t", Stage: deals.StageLost, Value: 50},
		{ID: "d6", TenantID: "other", Stage: deals.StageWon, Value: 9999},
	}
	svc := NewService(repo)

	out, err := svc.PipelineSummary(context.Background(), PipelineSummaryRequest{TenantID: "t"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalDeals != 5 {
		t.Fatalf("expected 5 deals, got %d", out.TotalDeals)
	}
	if out.WonValue != 1500 || out.OpenValue != 500 {
		t.Fatalf("unexpected values: won=%v open=%v", out.WonValue, out.OpenValue)
	}
	if out.Stages["won"].Count != 2 {
		t.Fatalf("expected 2 won deals, got %+v", out.Stages)
	}
	assertRate(t, "win", out.WinRate, 2.0/3)
}

func assertRate(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s rate: got %v want %v", name, got, want)
	}
}
