package cli

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/services"
)

// defaultWindow is how far back report, spending and moods look by default.
const defaultWindow = 30 * 24 * time.Hour

func (a *App) cmdExport(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) != 1 {
		return usageError("export")
	}
	if err := args.only("format"); err != nil {
		return err
	}

	format := services.FormatJSON
	if v := args.opts["format"]; v != "" {
		var err error
		if format, err = services.ParseFormat(v); err != nil {
			return err
		}
	}

	path, err := a.vault.Export(ctx, args.pos[0], format)
	if err != nil {
		return err
	}
	a.success("exported to %s", path)
	return nil
}

func (a *App) cmdAudit(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if err := args.only("module", "action", "from", "to", "limit"); err != nil {
		return err
	}

	var (
		f   models.AuditFilter
		err error
	)
	if v := args.opts["module"]; v != "" && v != string(models.ModuleSystem) {
		if f.Module, err = models.ParseModule(v); err != nil {
			return err
		}
	} else {
		f.Module = models.Module(v)
	}
	if v := args.opts["action"]; v != "" {
		if f.Action, err = models.ParseAction(v); err != nil {
			return err
		}
	}
	if f.From, err = args.time("from"); err != nil {
		return err
	}
	if f.To, err = args.time("to"); err != nil {
		return err
	}
	if f.Limit, err = args.int("limit", 50); err != nil {
		return err
	}

	entries, err := a.vault.AuditQuery(ctx, f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		a.printEntry(e)
	}
	a.printf("%d entr(ies)\n", len(entries))
	return nil
}

func (a *App) printEntry(e models.AuditEntry) {
	rec := ""
	if e.RecordID != nil {
		rec = " #" + strconv.FormatInt(*e.RecordID, 10)
	}
	a.printf("%s  %-9s %-6s%s", e.Timestamp.Format(time.RFC3339), e.Module, e.Action, rec)
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		a.printf(" %s=%s", k, e.Details[k])
	}
	a.printf("\n")
}

func (a *App) since(p args, def time.Duration) (time.Time, error) {
	if len(p.pos) > 0 {
		return models.ParseUserTime(p.pos[0])
	}
	return time.Now().UTC().Add(-def), nil
}

func (a *App) cmdReport(ctx context.Context, in []string) error {
	since, err := a.since(parseArgs(in), defaultWindow)
	if err != nil {
		return err
	}

	r, err := a.vault.AuditReport(ctx, since, services.DefaultRecentEvents)
	if err != nil {
		return err
	}

	a.header("Audit since %s: %d event(s)", r.Since.Format("2006-01-02"), r.Total)
	for _, m := range slices.Sorted(maps.Keys(r.ByModule)) {
		a.printf("  %-10s %d\n", m, r.ByModule[m])
	}
	for _, act := range slices.Sorted(maps.Keys(r.ByAction)) {
		a.printf("  %-10s %d\n", act, r.ByAction[act])
	}
	if len(r.Recent) > 0 {
		a.header("Recent")
		for _, e := range r.Recent {
			a.printEntry(e)
		}
	}
	return nil
}

func (a *App) cmdPrune(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) != 1 {
		return usageError("prune")
	}
	before, err := models.ParseUserTime(args.pos[0])
	if err != nil {
		return err
	}

	n, err := a.vault.PruneAudit(ctx, before)
	if err != nil {
		return err
	}
	a.success("pruned %d audit entr(ies)", n)
	return nil
}

func (a *App) cmdRotate(ctx context.Context, _ []string) error {
	pass, err := a.askPassphrase(ctx, true)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	if err := a.vault.RotateKey(ctx, pass); err != nil {
		return err
	}
	a.success("master key rotated")
	return nil
}

func (a *App) cmdStats(_ context.Context, _ []string) error {
	lines, err := a.vault.Metrics().Snapshot()
	if err != nil {
		return err
	}
	for _, l := range lines {
		a.printf("%s\n", l)
	}
	return nil
}

func (a *App) cmdSpending(ctx context.Context, in []string) error {
	args := parseArgs(in)
	from, err := a.since(args, defaultWindow)
	if err != nil {
		return err
	}
	to := time.Now().UTC()
	if len(args.pos) > 1 {
		if to, err = models.ParseUserTime(args.pos[1]); err != nil {
			return err
		}
	}

	rows, err := a.vault.SpendingByCategory(ctx, from, to)
	if err != nil {
		return err
	}
	for _, r := range rows {
		a.printf("%-24s %12s  (%d)\n", r.Category, r.Total.StringFixed(2), r.Count)
	}
	return nil
}

func (a *App) cmdMoods(ctx context.Context, in []string) error {
	since, err := a.since(parseArgs(in), defaultWindow)
	if err != nil {
		return err
	}

	stats, err := a.vault.MoodStatistics(ctx, since)
	if err != nil {
		return err
	}
	for _, s := range stats {
		a.printf("%-16s %4d  avg %.2f\n", s.MoodCategory, s.Count, s.AvgSentiment)
	}
	return nil
}
