package dbx

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/stretchr/testify/require"
)

func TestRunner_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)
	r := NewRunner(db, time.Second)

	err := r.Do(context.Background(), func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('ok')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, db))
}

func TestRunner_DomainErrorPassesThroughWithoutRetry(t *testing.T) {
	db := setupDB(t)
	r := NewRunner(db, time.Second)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, tx DBTX) error {
		calls++
		return common.ErrorNotFound
	})
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NotErrorIs(t, err, common.ErrTransactionAborted)
	require.Equal(t, 1, calls)
}

func TestRunner_TimeoutRollsBackAndAborts(t *testing.T) {
	db := setupDB(t)
	r := NewRunner(db, 20*time.Millisecond)

	err := r.Do(context.Background(), func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('slow')`)
		require.NoError(t, err)
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, common.ErrTransactionAborted)
	require.Equal(t, 0, countRows(t, db), "timed-out transaction must leave no rows")
}

func TestIsBusy_NonSQLiteError(t *testing.T) {
	require.False(t, IsBusy(errors.New("boom")))
	require.False(t, IsBusy(nil))
}

// lockedFile returns a runner over a file database with no busy wait, and a
// connection from a second handle that holds its write lock until release.
func lockedFile(t *testing.T) (r *Runner, db *sql.DB, release func()) {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "busy.db") + "?_pragma=busy_timeout(0)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)

	other, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.ExecContext(ctx, `BEGIN IMMEDIATE`)
	require.NoError(t, err)

	var once atomic.Bool
	release = func() {
		if once.CompareAndSwap(false, true) {
			_, _ = conn.ExecContext(ctx, `ROLLBACK`)
		}
	}
	t.Cleanup(release)

	return NewRunner(db, time.Second), db, release
}

func TestRunner_BusyIsRetriedOnce(t *testing.T) {
	r, db, release := lockedFile(t)
	r.retryDelay = 300 * time.Millisecond

	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, tx DBTX) error {
		calls++
		_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('after wait')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls, "the first attempt never got a transaction")
	require.Equal(t, 1, countRows(t, db))
}

func TestRunner_BusyAfterRetryAborts(t *testing.T) {
	r, db, _ := lockedFile(t)
	r.retryDelay = 10 * time.Millisecond

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, tx DBTX) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, common.ErrTransactionAborted)
	require.True(t, IsBusy(err))
	require.Zero(t, calls)
	require.Zero(t, countRows(t, db))
}
