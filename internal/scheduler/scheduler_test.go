package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"emex-dashboard/internal/outreach"
	"emex-dashboard/internal/sequences"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fakeSequences struct {
	mu      sync.Mutex
	tenants []string
	fail    map[string]error
	calls   []string
	// block, when set, holds RunDue until closed.
	block chan struct{}
}

func (f *fakeSequences) DueTenants(ctx context.Context, _ time.Time) ([]string, error) {
	return f.tenants, nil
}

func (f *fakeSequences) RunDue(ctx context.Context, tenantID string, _ time.Time, limit int) ([]sequences.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, tenantID)
	f.mu.Unlock()
	if err := f.fail[tenantID]; err != nil {
		return nil, err
	}
	return []sequences.Result{
		{EnrollmentID: tenantID + "-1", Outcome: sequences.OutcomeSent},
		{EnrollmentID: tenantID + "-2", Outcome: sequences.OutcomeFailed},
	}, nil
}

func (f *fakeSequences) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeQueue struct{ tenants []string }

func (f *fakeQueue) TenantsWithQueued(ctx context.Context, _ time.Time) ([]string, error) {
	return f.tenants, nil
}

func (f *fakeQueue) ProcessQueued(ctx context.Context, tenantID string, _ time.Time, limit int) ([]outreach.QueueResult, error) {
	return []outreach.QueueResult{
		{EmailID: "e1", Outcome: outreach.QueueSent},
		{EmailID: "e2", Outcome: outreach.QueueRetry},
		{EmailID: "e3", Outcome: outreach.QueueSent},
	}, nil
}

type fakeTimeBased struct {
	tenants []string
	trigger string
}

func (f *fakeTimeBased) TenantsWithTrigger(ctx context.Context, triggerType string) ([]string, error) {
	f.trigger = triggerType
	return f.tenants, nil
}

func (f *fakeTimeBased) RunTimeBased(ctx context.Context, tenantID string, _ time.Time) ([]string, error) {
	return []string{"wf-" + tenantID}, nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRunSequencesOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - runs every due tenant", func(t *testing.T) {
		_, rdb := newRedis(t)
		seq := &fakeSequences{tenants: []string{"t1", "t2"}}
		s := New(Deps{SequenceTenants: seq, Sequences: seq, Redis: rdb}, Options{}, nil)

		rep, err := s.RunSequencesOnce(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, Report{Sweep: SweepSequences, Tenants: 2, Items: 4, Failed: 2}, rep)
		assert.Equal(t, []string{"t1", "t2"}, seq.Calls())
	})

	t.Run("Success - lock is released after the sweep", func(t *testing.T) {
		mr, rdb := newRedis(t)
		seq := &fakeSequences{tenants: []string{"t1"}}
		s := New(Deps{SequenceTenants: seq, Sequences: seq, Redis: rdb}, Options{}, nil)

		_, err := s.RunSequencesOnce(ctx, now)
		require.NoError(t, err)
		assert.False(t, mr.Exists(lockKey(SweepSequences, "t1")))
	})

	t.Run("Success - locked tenant is skipped", func(t *testing.T) {
		mr, rdb := newRedis(t)
		require.NoError(t, mr.Set(lockKey(SweepSequences, "t1"), "other-process"))
		seq := &fakeSequences{tenants: []string{"t1", "t2"}}
		s := New(Deps{SequenceTenants: seq, Sequences: seq, Redis: rdb}, Options{}, nil)

		rep, err := s.RunSequencesOnce(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Locked)
		assert.Equal(t, 1, rep.Tenants)
		assert.Equal(t, []string{"t2"}, seq.Calls())
	})

	t.Run("Error - failing tenant does not stop the others", func(t *testing.T) {
		seq := &fakeSequences{
			tenants: []string{"t1", "t2"},
			fail:    map[string]error{"t1": errors.New("db down")},
		}
		s := New(Deps{SequenceTenants: seq, Sequences: seq}, Options{}, nil)

		rep, err := s.RunSequencesOnce(ctx, now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tenant t1")
		assert.Equal(t, []string{"t1", "t2"}, seq.Calls())
		assert.Equal(t, 2, rep.Tenants)
	})

	t.Run("Error - not configured", func(t *testing.T) {
		s := New(Deps{}, Options{}, nil)
		_, err := s.RunSequencesOnce(ctx, now)
		assert.Error(t, err)
	})
}

func TestRunSequencesOnce_ConcurrentProcessesShareLock(t *testing.T) {
	_, rdb := newRedis(t)
	seq := &fakeSequences{tenants: []string{"t1"}, block: make(chan struct{})}
	a := New(Deps{SequenceTenants: seq, Sequences: seq, Redis: rdb}, Options{}, nil)
	b := New(Deps{SequenceTenants: seq, Sequences: seq, Redis: rdb}, Options{}, nil)

	done := make(chan Report)
	go func() {
		rep, _ := a.RunSequencesOnce(context.Background(), now)
		done <- rep
	}()

	// Wait until a holds the lock.
	require.Eventually(t, func() bool {
		n, _ := rdb.Exists(context.Background(), lockKey(SweepSequences, "t1")).Result()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	rep, err := b.RunSequencesOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Locked)

	close(seq.block)
	first := <-done
	assert.Equal(t, 1, first.Tenants)
	assert.Equal(t, []string{"t1"}, seq.Calls())
}

func TestRunSequencesOnce_ExpiredLockIsNotStolen(t *testing.T) {
	mr, rdb := newRedis(t)
	seq := &fakeSequences{tenants: []string{"t1"}, block: make(chan struct{})}
	s := New(Deps{SequenceTenants: seq, Sequences: seq, Redis: rdb}, Options{}, nil)
	key := lockKey(SweepSequences, "t1")

	done := make(chan struct{})
	go func() {
		_, _ = s.RunSequencesOnce(context.Background(), now)
		close(done)
	}()
	require.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 5*time.Millisecond)

	// The first holder's lease runs out and another process takes the lock.
	mr.Del(key)
	require.NoError(t, mr.Set(key, "other-process"))

	close(seq.block)
	<-done

	v, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-process", v)
}

func TestOptionsLockOutlivesSweep(t *testing.T) {
	o := Options{LockTTL: time.Minute, SweepTimeout: 10 * time.Minute}.withDefaults()
	assert.GreaterOrEqual(t, o.LockTTL, o.SweepTimeout)

	o = Options{}.withDefaults()
	assert.GreaterOrEqual(t, o.LockTTL, o.SweepTimeout)

	o = Options{LockTTL: time.Hour, SweepTimeout: time.Minute}.withDefaults()
	assert.Equal(t, time.Hour, o.LockTTL)
}

func TestRunQueueOnce(t *testing.T) {
	_, rdb := newRedis(t)
	q := &fakeQueue{tenants: []string{"t1"}}
	s := New(Deps{QueueTenants: q, Queue: q, Redis: rdb}, Options{}, nil)

	rep, err := s.RunQueueOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Items)
	assert.Equal(t, 1, rep.Failed)
}

func TestRunTimeBasedOnce(t *testing.T) {
	tb := &fakeTimeBased{tenants: []string{"t1", "t2"}}
	s := New(Deps{TriggerTenants: tb, TimeBased: tb}, Options{}, nil)

	rep, err := s.RunTimeBasedOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, "time_based", tb.trigger)
	assert.Equal(t, 2, rep.Items)
}

type countingEvictor struct {
	mu sync.Mutex
	n  int
}

func (c *countingEvictor) Evict(time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return 0
}

func TestStartRejectsBadSpec(t *testing.T) {
	seq := &fakeSequences{}
	s := New(Deps{SequenceTenants: seq, Sequences: seq}, Options{SequenceSpec: "not a spec"}, nil)
	assert.Error(t, s.Start(context.Background()))

	// Unconfigured sweeps are never parsed.
	s = New(Deps{}, Options{SequenceSpec: "not a spec"}, nil)
	require.NoError(t, s.Start(context.Background()))
	s.Stop(context.Background())
}

func TestStartAndStop(t *testing.T) {
	ev := &countingEvictor{}
	s := New(Deps{Limiter: ev}, Options{EvictSpec: "@every 1s"}, nil)
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
