package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vault/internal/models"
)

func (a *App) cmdSearch(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if err := args.only("module", "tag", "from", "to"); err != nil {
		return err
	}

	var (
		f   models.SearchFilter
		err error
	)
	if v := args.opts["module"]; v != "" {
		if f.Module, err = models.ParseModule(v); err != nil {
			return err
		}
	}
	f.Tags = models.SplitList(args.opts["tag"])
	if f.From, err = args.time("from"); err != nil {
		return err
	}
	if f.To, err = args.time("to"); err != nil {
		return err
	}

	res, err := a.vault.SearchAll(ctx, strings.Join(args.pos, " "), f)
	if err != nil {
		return err
	}

	for _, m := range models.Modules() {
		for _, s := range res.Groups[m] {
			a.printSummary(s)
		}
	}
	a.printf("%d match(es)\n", res.Total)
	return nil
}

func (a *App) tagArgs(cmd string, in []string) (models.Module, int64, string, error) {
	args := parseArgs(in)
	m, id, err := args.moduleAndID(cmd)
	if err != nil {
		return "", 0, "", err
	}
	if len(args.pos) != 3 {
		return "", 0, "", usageError(cmd)
	}
	return m, id, args.pos[2], nil
}

func (a *App) cmdTag(ctx context.Context, in []string) error {
	m, id, tag, err := a.tagArgs("tag", in)
	if err != nil {
		return err
	}
	if err := a.vault.AddTag(ctx, m, id, tag); err != nil {
		return err
	}
	a.success("tagged %s #%d", m, id)
	return nil
}

func (a *App) cmdUntag(ctx context.Context, in []string) error {
	m, id, tag, err := a.tagArgs("untag", in)
	if err != nil {
		return err
	}
	if err := a.vault.RemoveTag(ctx, m, id, tag); err != nil {
		return err
	}
	a.success("untagged %s #%d", m, id)
	return nil
}

func (a *App) setFavorite(ctx context.Context, cmd string, in []string, fav bool) error {
	m, id, err := parseArgs(in).moduleAndID(cmd)
	if err != nil {
		return err
	}
	if err := a.vault.SetFavorite(ctx, m, id, fav); err != nil {
		return err
	}
	a.success("%s #%d favorite=%t", m, id, fav)
	return nil
}

func (a *App) cmdFav(ctx context.Context, in []string) error {
	return a.setFavorite(ctx, "fav", in, true)
}

func (a *App) cmdUnfav(ctx context.Context, in []string) error {
	return a.setFavorite(ctx, "unfav", in, false)
}

func (a *App) cmdFavs(ctx context.Context, in []string) error {
	args := parseArgs(in)
	if len(args.pos) != 1 {
		return usageError("favs")
	}
	m, err := models.ParseModule(args.pos[0])
	if err != nil {
		return err
	}

	ids, err := a.vault.GetFavorites(ctx, m)
	if err != nil {
		return err
	}
	for _, id := range ids {
		a.printf("%s #%d\n", m, id)
	}
	a.printf("%d favorite(s)\n", len(ids))
	return nil
}

func (a *App) cmdPopular(ctx context.Context, in []string) error {
	args := parseArgs(in)
	limit := 0
	if len(args.pos) > 0 {
		if _, err := fmt.Sscan(args.pos[0], &limit); err != nil {
			return usageError("popular")
		}
	}

	tags, err := a.vault.PopularTags(ctx, limit)
	if err != nil {
		return err
	}
	a.printTags(tags)
	return nil
}

func (a *App) cmdTags(ctx context.Context, in []string) error {
	args := parseArgs(in)
	pattern := "*"
	if len(args.pos) > 0 {
		pattern = args.pos[0]
	}

	tags, err := a.vault.FindTags(ctx, pattern)
	if err != nil {
		return err
	}
	a.printTags(tags)
	return nil
}

func (a *App) printTags(tags []models.TagCount) {
	for _, t := range tags {
		a.printf("%-32s %d\n", t.Tag, t.Count)
	}
}

func (a *App) cmdReindex(ctx context.Context, _ []string) error {
	if err := a.vault.RebuildIndex(ctx); err != nil {
		return err
	}
	a.success("tag index rebuilt")
	return nil
}
