// Package budgets stores monthly spending limits per transaction category.
// Budgets are plaintext finance metadata; nothing here is sealed.
package budgets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Upsert(ctx context.Context, b *models.Budget) error
	Get(ctx context.Context, category string) (*models.Budget, error)
	List(ctx context.Context) ([]models.Budget, error)
	Delete(ctx context.Context, category string) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert creates the budget or replaces its limit and threshold. The
// creation time of an existing budget is kept.
func (r *SQLiteRepository) Upsert(ctx context.Context, b *models.Budget) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (category, monthly_limit, alert_threshold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			monthly_limit = excluded.monthly_limit,
			alert_threshold = excluded.alert_threshold,
			updated_at = excluded.updated_at`,
		b.Category, b.MonthlyLimit.StringFixed(2), b.AlertThreshold,
		models.FormatTime(b.CreatedAt), models.FormatTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save budget %q: %w", b.Category, err)
	}
	return nil
}

const selectBudgets = `SELECT category, monthly_limit, alert_threshold, created_at, updated_at FROM budgets`

type scanner interface {
	Scan(dest ...any) error
}

func scanBudget(s scanner) (*models.Budget, error) {
	var (
		b                models.Budget
		limit            string
		created, updated string
	)
	if err := s.Scan(&b.Category, &limit, &b.AlertThreshold, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if b.MonthlyLimit, err = decimal.NewFromString(limit); err != nil {
		return nil, fmt.Errorf("failed to decode limit of budget %q: %w", b.Category, err)
	}
	if b.CreatedAt, err = models.ParseTime(created); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = models.ParseTime(updated); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, category string) (*models.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx, selectBudgets+` WHERE category = ?`, category))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %q: %w", category, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget %q: %w", category, err)
	}
	return b, nil
}

// List returns every budget ordered by category.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.Budget, error) {
	rows, err := r.db.QueryContext(ctx, selectBudgets+` ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var out []models.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, category string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE category = ?`, category)
	if err != nil {
		return fmt.Errorf("failed to delete budget %q: %w", category, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("budget %q: %w", category, common.ErrorNotFound)
	}
	return nil
}
