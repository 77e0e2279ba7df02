package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// txDriver records transaction outcomes. It supports no statements.
type txDriver struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	commitErr error
}

func (d *txDriver) Open(string) (driver.Conn, error) { return &txConn{d: d}, nil }

func (d *txDriver) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits, d.rollbacks
}

type txConn struct{ d *txDriver }

func (c *txConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *txConn) Close() error                        { return nil }
func (c *txConn) Begin() (driver.Tx, error)           { return &fakeTx{d: c.d}, nil }

type fakeTx struct{ d *txDriver }

func (t *fakeTx) Commit() error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.commits++
	return t.d.commitErr
}

func (t *fakeTx) Rollback() error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.rollbacks++
	return nil
}

var driverSeq atomic.Int64

func openFake(t *testing.T) (*sql.DB, *txDriver) {
	t.Helper()
	d := &txDriver{}
	name := fmt.Sprintf("utils-fake-%d", driverSeq.Add(1))
	sql.Register(name, d)
	db, err := OpenPostgres(context.Background(), name, "", PostgresPoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, d
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - commits", func(t *testing.T) {
		db, d := openFake(t)
		require.NoError(t, WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error { return nil }))
		commits, rollbacks := d.counts()
		assert.Equal(t, 1, commits)
		assert.Equal(t, 0, rollbacks)
	})

	t.Run("Error - rolls back on failure", func(t *testing.T) {
		db, d := openFake(t)
		boom := errors.New("boom")
		err := WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		commits, rollbacks := d.counts()
		assert.Equal(t, 0, commits)
		assert.Equal(t, 1, rollbacks)
	})

	t.Run("Error - rolls back and re-panics", func(t *testing.T) {
		db, d := openFake(t)
		assert.Panics(t, func() {
			_ = WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error { panic("bad") })
		})
		_, rollbacks := d.counts()
		assert.Equal(t, 1, rollbacks)
	})

	t.Run("Error - commit failure is returned", func(t *testing.T) {
		db, d := openFake(t)
		d.commitErr = errors.New("serialization failure")
		err := WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error { return nil })
		assert.ErrorContains(t, err, "commit")
	})
}

func TestHealthCheck(t *testing.T) {
	db, _ := openFake(t)
	assert.NoError(t, HealthCheck(context.Background(), db, time.Second))

	require.NoError(t, db.Close())
	assert.Error(t, HealthCheck(context.Background(), db, time.Second))
}
