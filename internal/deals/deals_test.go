package deals

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) DealEvent(ctx context.Context, e Event) error {
	s.events = append(s.events, e)
	return s.err
}

func newTestService() (*Service, *recordingSink) {
	sink := &recordingSink{}
	svc := NewService(NewMemoryRepo(), sink)
	svc.clock = func() time.Time { return time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) }
	return svc, sink
}

func TestService_CreateEmitsEvent(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService()

	d, err := svc.Create(ctx, "t1", Deal{Title: " Acme renewal ", Value: 1200})
	require.NoError(t, err)
	assert.Equal(t, "Acme renewal", d.Title)
	assert.Equal(t, StageLead, d.Stage)

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventDealCreated, sink.events[0].Type)
	assert.Equal(t, d.ID, sink.events[0].Deal.ID)

	_, err = svc.Create(ctx, "t1", Deal{Title: "x", Stage: "closed"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.Create(ctx, "", Deal{Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_UpdateStage(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService()
	d, _ := svc.Create(ctx, "t1", Deal{Title: "Acme"})

	t.Run("Success - emits old and new stage", func(t *testing.T) {
		got, err := svc.UpdateStage(ctx, "t1", d.ID, StageProposal)
		require.NoError(t, err)
		assert.Equal(t, StageProposal, got.Stage)
		last := sink.events[len(sink.events)-1]
		assert.Equal(t, EventDealStageChanged, last.Type)
		assert.Equal(t, "lead", last.Data["from_stage"])
		assert.Equal(t, "proposal", last.Data["to_stage"])
	})

	t.Run("Success - same stage is silent", func(t *testing.T) {
		n := len(sink.events)
		_, err := svc.UpdateStage(ctx, "t1", d.ID, StageProposal)
		require.NoError(t, err)
		assert.Len(t, sink.events, n)
	})

	t.Run("Error - other tenant", func(t *testing.T) {
		_, err := svc.UpdateStage(ctx, "t2", d.ID, StageWon)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Success - sink failure does not fail the update", func(t *testing.T) {
		sink.err = errors.New("boom")
		defer func() { sink.err = nil }()
		got, err := svc.UpdateStage(ctx, "t1", d.ID, StageWon)
		require.NoError(t, err)
		assert.Equal(t, StageWon, got.Stage)
	})
}

func TestApplyPatch(t *testing.T) {
	d := Deal{Title: "Acme", Stage: StageLead, Properties: map[string]any{"owner": "ada", "tier": "silver"}}

	var patch map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"stage":"Qualified","value":2500,"tier":"gold","source":"webinar"}`), &patch))

	got, applied, err := ApplyPatch(d, patch)
	require.NoError(t, err)
	assert.Equal(t, StageQualified, got.Stage)
	assert.Equal(t, 2500.0, got.Value)
	assert.Equal(t, map[string]any{"owner": "ada", "tier": "gold", "source": "webinar"}, got.Properties)
	assert.ElementsMatch(t, []string{"stage", "value", "tier", "source"}, applied)
	assert.Equal(t, "silver", d.Properties["tier"], "input deal is not mutated")

	_, _, err = ApplyPatch(d, map[string]any{"stage": "closed"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = ApplyPatch(d, map[string]any{"tenant_id": "t2"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = ApplyPatch(d, map[string]any{"value": "abc"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestService_PatchDoesNotEmit(t *testing.T) {
	ctx := context.Background()
	svc, sink := newTestService()
	d, _ := svc.Create(ctx, "t1", Deal{Title: "Acme"})
	n := len(sink.events)

	got, applied, err := svc.Patch(ctx, "t1", d.ID, map[string]any{"stage": "won", "note": "signed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"note", "stage"}, applied)
	assert.Equal(t, StageWon, got.Stage)
	assert.Len(t, sink.events, n)

	stored, err := svc.Get(ctx, "t1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, "signed", stored.Properties["note"])

	_, _, err = svc.Patch(ctx, "t1", d.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
