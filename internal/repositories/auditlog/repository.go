// Package auditlog persists the append-only access log. The repository has
// no update method; DeleteBefore exists only for explicit, separately logged
// retention.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
)

type Repository interface {
	Insert(ctx context.Context, e *models.AuditEntry) error
	Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error)
	Recent(ctx context.Context, limit int) ([]models.AuditEntry, error)
	Counts(ctx context.Context, since time.Time) (map[models.Module]int, map[models.ActionType]int, error)
	CountBefore(ctx context.Context, cutoff time.Time) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.AuditEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	enc, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	var recordID sql.NullInt64
	if e.RecordID != nil {
		recordID = sql.NullInt64{Int64: *e.RecordID, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, timestamp, module, action_type, record_id, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.EventID, models.FormatTime(e.Timestamp), string(e.Module), string(e.Action), recordID, string(enc))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	e.ID = id
	return nil
}

const selectEntries = `SELECT id, event_id, timestamp, module, action_type, record_id, details FROM audit_log`

// Query returns matching entries by timestamp ascending, ties broken by
// insertion order.
func (r *SQLiteRepository) Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error) {
	q := selectEntries + ` WHERE 1 = 1`
	var args []any
	if !f.From.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, models.FormatTime(f.From))
	}
	if !f.To.IsZero() {
		q += ` AND timestamp < ?`
		args = append(args, models.FormatTime(f.To))
	}
	if f.Module != "" {
		q += ` AND module = ?`
		args = append(args, string(f.Module))
	}
	if f.Action != "" {
		q += ` AND action_type = ?`
		args = append(args, string(f.Action))
	}
	q += ` ORDER BY timestamp ASC, id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return r.list(ctx, q, args...)
}

// Recent returns the newest entries, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return r.list(ctx, selectEntries+` ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
}

func (r *SQLiteRepository) list(ctx context.Context, q string, args ...any) ([]models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e        models.AuditEntry
			ts       string
			module   string
			action   string
			recordID sql.NullInt64
			details  string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &ts, &module, &action, &recordID, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.Timestamp, err = models.ParseTime(ts); err != nil {
			return nil, fmt.Errorf("failed to decode audit timestamp: %w", err)
		}
		e.Module = models.Module(module)
		e.Action = models.ActionType(action)
		if recordID.Valid {
			id := recordID.Int64
			e.RecordID = &id
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Counts(ctx context.Context, since time.Time) (map[models.Module]int, map[models.ActionType]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT module, action_type, COUNT(*) FROM audit_log
		WHERE timestamp >= ? GROUP BY module, action_type`, models.FormatTime(since))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	defer rows.Close()

	byModule := make(map[models.Module]int)
	byAction := make(map[models.ActionType]int)
	for rows.Next() {
		var module, action string
		var n int
		if err := rows.Scan(&module, &action, &n); err != nil {
			return nil, nil, err
		}
		byModule[models.Module(module)] += n
		byAction[models.ActionType(action)] += n
	}
	return byModule, byAction, rows.Err()
}

func (r *SQLiteRepository) CountBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE timestamp < ?`, models.FormatTime(cutoff)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < ?`, models.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return res.RowsAffected()
}
