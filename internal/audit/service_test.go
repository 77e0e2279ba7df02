package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresTenantAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeDealUpdated}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{TenantID: "t"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.LogLeadsImported(context.Background(), "t", "u", "owner", "1.2.3.4", map[string]any{"success": 3})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].Type != EventTypeLeadsImported {
		t.Fatalf("expected leads_imported")
	}
	if evs[0].Metadata != `{"success":3}` {
		t.Fatalf("unexpected metadata %q", evs[0].Metadata)
	}
}

func TestService_ListIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo)

	_ = svc.LogDealUpdated(ctx, "t1", "d1", "wf1", "stage changed", map[string]any{"stage": "won"})
	_ = svc.LogTaskCreated(ctx, "t1", "d1", "wf1", "Call back", nil)
	_ = svc.LogDealUpdated(ctx, "t2", "d2", "", "stage changed", nil)

	got, err := svc.List(ctx, "t1", Filter{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != EventTypeTaskCreated {
		t.Fatalf("expected newest first, got %s", got[0].Type)
	}

	got, _ = svc.List(ctx, "t1", Filter{Type: EventTypeDealUpdated})
	if len(got) != 1 || got[0].DealID != "d1" {
		t.Fatalf("expected filtered deal event, got %+v", got)
	}

	if _, err := svc.List(ctx, "", Filter{}); err == nil {
		t.Fatalf("expected error for missing tenant")
	}
}
