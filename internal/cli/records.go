package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/services"
)

func (a *App) cmdIngest(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) != 1 {
		return usageError("ingest")
	}
	m, err := models.ParseModule(args.pos[0])
	if err != nil {
		return err
	}

	payload, err := a.readPayload(m)
	if err != nil {
		return err
	}

	id, err := a.vault.Ingest(ctx, m, payload, args.opts)
	if err != nil {
		return err
	}
	a.success("stored %s #%d", m, id)
	return nil
}

// readPayload asks for the sensitive part of a new record.
func (a *App) readPayload(m models.Module) ([]byte, error) {
	switch m {
	case models.ModuleJournal:
		text, err := GetMultiline(a.reader, "Entry text:", a.out)
		if err != nil {
			return nil, err
		}
		return []byte(text), nil

	case models.ModuleFinance:
		var p models.TransactionPayload
		if err := a.ask(map[string]*string{
			"Merchant":       &p.Merchant,
			"Description":    &p.Description,
			"Account number": &p.AccountNumber,
		}, "Merchant", "Description", "Account number"); err != nil {
			return nil, err
		}
		return json.Marshal(p)

	case models.ModuleDocuments:
		var p models.DocumentPayload
		if err := a.ask(map[string]*string{
			"File path": &p.FilePath,
			"Summary":   &p.Summary,
			"Entities":  &p.Entities,
		}, "File path", "Summary", "Entities"); err != nil {
			return nil, err
		}
		content, err := GetMultiline(a.reader, "Content:", a.out)
		if err != nil {
			return nil, err
		}
		p.Content = content
		return json.Marshal(p)
	}
	return nil, fmt.Errorf("unknown module %q", m)
}

func (a *App) ask(dst map[string]*string, order ...string) error {
	for _, prompt := range order {
		v, err := GetSimpleText(a.reader, prompt, a.out)
		if err != nil {
			return err
		}
		*dst[prompt] = v
	}
	return nil
}

func (a *App) cmdShow(ctx context.Context, in []string) error {
	m, id, err := parseArgs(in).moduleAndID("show")
	if err != nil {
		return err
	}

	s, payload, err := a.vault.Fetch(ctx, m, id)
	if err != nil {
		return err
	}

	a.printSummary(s)
	for _, k := range slices.Sorted(maps.Keys(s.Plain)) {
		a.printf("  %s: %s\n", k, s.Plain[k])
	}

	if m == models.ModuleJournal {
		a.printf("\n%s\n", payload)
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "  ", "  "); err != nil {
		return err
	}
	a.printf("  %s\n", pretty.String())
	return nil
}

func (a *App) printSummary(s models.Summary) {
	star := ""
	if s.IsFavorite {
		star = " *"
	}
	tags := ""
	if len(s.Tags) > 0 {
		tags = " [" + strings.Join(s.Tags, ", ") + "]"
	}
	a.header("%s #%d  %s%s%s", s.Module, s.ID, s.CreatedAt.Format("2006-01-02 15:04"), star, tags)
}

func (a *App) cmdList(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) < 1 {
		return usageError("list")
	}
	if err := args.only("tag", "from", "to"); err != nil {
		return err
	}
	m, err := models.ParseModule(args.pos[0])
	if err != nil {
		return err
	}

	f := models.ListFilter{
		Tags:         models.SplitList(args.opts["tag"]),
		FavoriteOnly: slices.Contains(args.pos[1:], "fav"),
	}
	if f.From, err = args.time("from"); err != nil {
		return err
	}
	if f.To, err = args.time("to"); err != nil {
		return err
	}

	n := 0
	for rec, err := range a.vault.List(ctx, m, f, services.MetadataOnly()) {
		if err != nil {
			return err
		}
		s := models.Summarize(rec)
		a.printSummary(s)
		n++
	}
	a.printf("%d record(s)\n", n)
	return nil
}

func (a *App) cmdUpdate(ctx context.Context, in []string) error {
	args := parseArgs(in)
	m, id, err := args.moduleAndID("update")
	if err != nil {
		return err
	}
	p, err := parsePatch(m, args.opts)
	if err != nil {
		return err
	}
	if err := a.vault.Update(ctx, m, id, p); err != nil {
		return err
	}
	a.success("updated %s #%d", m, id)
	return nil
}

func (a *App) cmdDelete(ctx context.Context, in []string) error {
	m, id, err := parseArgs(in).moduleAndID("delete")
	if err != nil {
		return err
	}
	if err := a.vault.Delete(ctx, m, id); err != nil {
		return err
	}
	a.success("deleted %s #%d", m, id)
	return nil
}

func (a *App) cmdPurge(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) != 2 {
		return usageError("purge")
	}
	m, err := models.ParseModule(args.pos[0])
	if err != nil {
		return err
	}
	before, err := models.ParseUserTime(args.pos[1])
	if err != nil {
		return err
	}

	n, err := a.vault.Purge(ctx, m, before)
	if err != nil {
		return err
	}
	a.success("purged %d %s record(s)", n, m)
	return nil
}
