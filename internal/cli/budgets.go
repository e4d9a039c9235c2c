package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

// cmdBudget reads "<category words ...> <limit>"; the category may contain
// spaces, the limit is always the last word.
func (a *App) cmdBudget(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) < 2 {
		return usageError("budget")
	}
	if err := args.only("threshold"); err != nil {
		return err
	}

	last := args.pos[len(args.pos)-1]
	limit, err := decimal.NewFromString(last)
	if err != nil {
		return fmt.Errorf("%w: bad monthly limit %q", common.ErrValidation, last)
	}
	b := models.Budget{
		Category:     strings.Join(args.pos[:len(args.pos)-1], " "),
		MonthlyLimit: limit,
	}
	if v := args.opts["threshold"]; v != "" {
		if b.AlertThreshold, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("%w: bad threshold %q", common.ErrValidation, v)
		}
	}

	saved, err := a.vault.SetBudget(ctx, b)
	if err != nil {
		return err
	}
	a.success("budget set for %s: %s per month, alert at %.0f%%",
		saved.Category, saved.MonthlyLimit.StringFixed(2), saved.AlertThreshold*100)
	return nil
}

func (a *App) cmdUnbudget(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) == 0 || len(args.opts) > 0 {
		return usageError("unbudget")
	}
	category := strings.Join(args.pos, " ")
	if err := a.vault.RemoveBudget(ctx, category); err != nil {
		return err
	}
	a.success("budget for %s removed", category)
	return nil
}

// cmdBudgets prints every budget against the month containing the given
// date, this month by default.
func (a *App) cmdBudgets(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) > 1 || len(args.opts) > 0 {
		return usageError("budgets")
	}
	month := time.Now().UTC()
	if len(args.pos) == 1 {
		var err error
		if month, err = models.ParseUserTime(args.pos[0]); err != nil {
			return err
		}
	}

	rows, err := a.vault.BudgetStatus(ctx, month)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.printf("no budgets\n")
		return nil
	}

	from, _ := models.MonthBounds(month)
	a.header("Budgets for %s", from.Format("January 2006"))
	for _, r := range rows {
		a.printf("%-24s %12s / %-12s %5.1f%%  %s\n",
			r.Category, r.Spent.StringFixed(2), r.MonthlyLimit.StringFixed(2), r.Used*100, budgetState(r.State))
	}
	return nil
}

func budgetState(s models.BudgetState) string {
	switch s {
	case models.BudgetExceeded:
		return color.RedString(string(s))
	case models.BudgetAlert:
		return color.YellowString(string(s))
	}
	return color.GreenString(string(s))
}
