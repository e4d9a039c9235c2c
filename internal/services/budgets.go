package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/repositories/budgets"
	"github.com/shopspring/decimal"
)

// BudgetService keeps monthly spending limits per finance category.
//
// Set and Remove are audited under the finance module; List and Status read
// plaintext metadata only and need no key.
type BudgetService interface {
	Set(ctx context.Context, b models.Budget) (*models.Budget, error)
	List(ctx context.Context) ([]models.Budget, error)
	Remove(ctx context.Context, category string) error
	Status(ctx context.Context, month time.Time) ([]models.BudgetStatus, error)
}

type budgetService struct {
	d       Deps
	records RecordService
	audit   AuditService
}

func NewBudgetService(d Deps, records RecordService, audit AuditService) BudgetService {
	return &budgetService{d: d, records: records, audit: audit}
}

// Set creates or replaces the budget of b.Category. A zero threshold means
// models.DefaultAlertThreshold.
func (s *budgetService) Set(ctx context.Context, b models.Budget) (*models.Budget, error) {
	b.Category = strings.TrimSpace(b.Category)
	if b.AlertThreshold == 0 {
		b.AlertThreshold = models.DefaultAlertThreshold
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	unlock := s.d.Locks.Write(models.ModuleFinance)
	defer unlock()

	now := s.d.now()
	b.CreatedAt, b.UpdatedAt = now, now

	var saved *models.Budget
	err := s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := budgets.NewSQLiteRepository(tx)
		if err := repo.Upsert(ctx, &b); err != nil {
			return err
		}
		var err error
		if saved, err = repo.Get(ctx, b.Category); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module: models.ModuleFinance,
			Action: models.ActionUpdate,
			Details: map[string]string{
				"operation":       "budget_set",
				"category":        b.Category,
				"monthly_limit":   b.MonthlyLimit.StringFixed(2),
				"alert_threshold": strconv.FormatFloat(b.AlertThreshold, 'f', -1, 64),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.d.committed(models.ModuleFinance, models.ActionUpdate)
	s.d.Log.Info(ctx, "budget saved", "category", b.Category)
	return saved, nil
}

func (s *budgetService) List(ctx context.Context) ([]models.Budget, error) {
	unlock := s.d.Locks.Read()
	defer unlock()
	return budgets.NewSQLiteRepository(s.d.Runner.DB()).List(ctx)
}

func (s *budgetService) Remove(ctx context.Context, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("%w: budget category is required", common.ErrValidation)
	}

	unlock := s.d.Locks.Write(models.ModuleFinance)
	defer unlock()

	err := s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := budgets.NewSQLiteRepository(tx).Delete(ctx, category); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module:  models.ModuleFinance,
			Action:  models.ActionDelete,
			Details: map[string]string{"operation": "budget_remove", "category": category},
		})
	})
	if err != nil {
		return err
	}

	s.d.committed(models.ModuleFinance, models.ActionDelete)
	return nil
}

// Status compares every budget with the debit spending of its category in
// the calendar month containing month.
func (s *budgetService) Status(ctx context.Context, month time.Time) ([]models.BudgetStatus, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	from, to := models.MonthBounds(month)
	spending, err := s.records.SpendingByCategory(ctx, from, to)
	if err != nil {
		return nil, err
	}
	spent := make(map[string]decimal.Decimal, len(spending))
	for _, c := range spending {
		spent[c.Category] = c.Total
	}

	out := make([]models.BudgetStatus, 0, len(all))
	for _, b := range all {
		out = append(out, models.NewBudgetStatus(b, spent[b.Category]))
	}
	return out, nil
}
