package models

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/shopspring/decimal"
)

// DefaultAlertThreshold is the share of a monthly limit at which a budget
// starts to alert.
const DefaultAlertThreshold = 0.9

const maxCategoryLength = 64

// Budget caps monthly debit spending of one transaction category. The
// category matches Transaction.Category exactly.
type Budget struct {
	Category       string
	MonthlyLimit   decimal.Decimal
	AlertThreshold float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (b *Budget) Validate() error {
	n := utf8.RuneCountInString(b.Category)
	if strings.TrimSpace(b.Category) == "" || n > maxCategoryLength {
		return fmt.Errorf("%w: budget category must be 1..%d characters", common.ErrValidation, maxCategoryLength)
	}
	if !b.MonthlyLimit.IsPositive() {
		return fmt.Errorf("%w: monthly limit %s must be positive", common.ErrValidation, b.MonthlyLimit)
	}
	if b.MonthlyLimit.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: monthly limit %s exceeds %s", common.ErrValidation, b.MonthlyLimit, MaxAmount)
	}
	if !b.MonthlyLimit.Equal(b.MonthlyLimit.Round(2)) {
		return fmt.Errorf("%w: monthly limit %s has more than two decimals", common.ErrValidation, b.MonthlyLimit)
	}
	if math.IsNaN(b.AlertThreshold) || b.AlertThreshold <= 0 || b.AlertThreshold > 1 {
		return fmt.Errorf("%w: alert threshold %v outside (0, 1]", common.ErrValidation, b.AlertThreshold)
	}
	return nil
}

// BudgetState classifies spending against a budget.
type BudgetState string

const (
	BudgetOK       BudgetState = "ok"
	BudgetAlert    BudgetState = "alert"
	BudgetExceeded BudgetState = "exceeded"
)

// BudgetStatus is a budget together with the month's spending in its
// category. Remaining is negative once the limit is exceeded.
type BudgetStatus struct {
	Budget
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	Used      float64
	State     BudgetState
}

func NewBudgetStatus(b Budget, spent decimal.Decimal) BudgetStatus {
	used, _ := spent.Div(b.MonthlyLimit).Float64()

	state := BudgetOK
	switch {
	case spent.GreaterThan(b.MonthlyLimit):
		state = BudgetExceeded
	case used >= b.AlertThreshold:
		state = BudgetAlert
	}

	return BudgetStatus{
		Budget:    b,
		Spent:     spent,
		Remaining: b.MonthlyLimit.Sub(spent),
		Used:      used,
		State:     state,
	}
}

// MonthBounds returns the UTC calendar month containing t as [start, end).
func MonthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
