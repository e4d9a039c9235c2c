package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Runner executes write transactions under a deadline. A transaction that
// fails because the database is busy or locked is retried once; timeouts and
// exhausted retries surface as common.ErrTransactionAborted.
type Runner struct {
	db         *sql.DB
	timeout    time.Duration
	retryDelay time.Duration
}

func NewRunner(db *sql.DB, timeout time.Duration) *Runner {
	return &Runner{db: db, timeout: timeout, retryDelay: 50 * time.Millisecond}
}

// DB returns the underlying handle for read-only queries.
func (r *Runner) DB() *sql.DB {
	return r.db
}

// Do runs fn in a single transaction. Errors returned by fn itself are passed
// through unchanged unless they are lock contention.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return r.DoTimeout(ctx, r.timeout, fn)
}

// DoTimeout is Do with an explicit deadline, for long maintenance work such
// as re-encrypting the whole store.
func (r *Runner) DoTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx DBTX) error) error {
	var timedOut bool

	b := retry.WithMaxRetries(1, retry.NewConstant(r.retryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := WithTx(tctx, r.db, nil, fn)
		if err == nil {
			return nil
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			timedOut = true
			return err
		}
		if IsBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	if timedOut || IsBusy(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrTransactionAborted, err)
	}
	return err
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including their
// extended codes.
func IsBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
