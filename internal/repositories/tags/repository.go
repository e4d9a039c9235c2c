// Package tags stores the record_tags lookup table: a derived index from tag
// to (module, record id), rebuilt from the tags column of each record.
package tags

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
)

type Repository interface {
	Replace(ctx context.Context, m models.Module, id int64, tags []string) error
	DeleteRecord(ctx context.Context, m models.Module, id int64) error
	Popular(ctx context.Context, limit int) ([]models.TagCount, error)
	Counts(ctx context.Context) ([]models.TagCount, error)
	Clear(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Replace makes the index rows of one record equal to tags, in order.
func (r *SQLiteRepository) Replace(ctx context.Context, m models.Module, id int64, tags []string) error {
	if err := r.DeleteRecord(ctx, m, id); err != nil {
		return err
	}
	for i, tag := range tags {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO record_tags (module, record_id, tag, position) VALUES (?, ?, ?, ?)`,
			string(m), id, tag, i)
		if err != nil {
			return fmt.Errorf("failed to index tag %q: %w", tag, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, m models.Module, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM record_tags WHERE module = ? AND record_id = ?`, string(m), id)
	if err != nil {
		return fmt.Errorf("failed to unindex tags of %s record %d: %w", m, id, err)
	}
	return nil
}

// Popular returns tags by usage, count descending then tag ascending.
func (r *SQLiteRepository) Popular(ctx context.Context, limit int) ([]models.TagCount, error) {
	return r.counts(ctx, `
		SELECT tag, COUNT(*) AS n FROM record_tags
		GROUP BY tag ORDER BY n DESC, tag ASC LIMIT ?`, limit)
}

// Counts returns every tag with its usage, ordered by tag.
func (r *SQLiteRepository) Counts(ctx context.Context) ([]models.TagCount, error) {
	return r.counts(ctx, `SELECT tag, COUNT(*) FROM record_tags GROUP BY tag ORDER BY tag`)
}

func (r *SQLiteRepository) counts(ctx context.Context, q string, args ...any) ([]models.TagCount, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	defer rows.Close()

	var out []models.TagCount
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tag counts: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM record_tags`); err != nil {
		return fmt.Errorf("failed to clear tag index: %w", err)
	}
	return nil
}
