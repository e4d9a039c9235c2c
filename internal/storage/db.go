// Package storage opens the vault database file and brings its schema up
// to date.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/dmitrijs2005/vault/internal/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// DSN builds a modernc sqlite DSN with WAL, a busy timeout and immediate
// write transactions, so concurrent readers see only committed state and
// writers queue instead of failing on upgrade.
func DSN(path string, busyTimeoutMillis int) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "foreign_keys(on)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens the database at path and applies pending migrations. The
// handle is closed again if migrations fail.
func Open(ctx context.Context, path string, busyTimeoutMillis int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path, busyTimeoutMillis))
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
