package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/cryptox"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/repositories/records"
	"github.com/dmitrijs2005/vault/internal/repositories/tags"
)

// DefaultPopularTags is the PopularTags limit when the caller passes none.
const DefaultPopularTags = 10

// IndexService provides cross-module search, tagging and favorites.
//
// Search never decrypts: it matches plaintext metadata, tags and the blind
// tokens of the query words. Tag and favorite changes are idempotent and
// only effective changes are audited.
type IndexService interface {
	Search(ctx context.Context, query string, f models.SearchFilter) (*models.SearchResults, error)
	AddTag(ctx context.Context, m models.Module, id int64, tag string) error
	RemoveTag(ctx context.Context, m models.Module, id int64, tag string) error
	SetFavorite(ctx context.Context, m models.Module, id int64, fav bool) error
	GetFavorites(ctx context.Context, m models.Module) ([]int64, error)
	PopularTags(ctx context.Context, limit int) ([]models.TagCount, error)
	FindTags(ctx context.Context, pattern string) ([]models.TagCount, error)
	Rebuild(ctx context.Context) error
}

type indexService struct {
	d     Deps
	audit AuditService
}

func NewIndexService(d Deps, audit AuditService) IndexService {
	return &indexService{d: d, audit: audit}
}

// Search needs the key only when the query has words to tokenize.
func (s *indexService) Search(ctx context.Context, query string, f models.SearchFilter) (*models.SearchResults, error) {
	modules := models.Modules()
	if f.Module != "" {
		if err := checkModule(f.Module); err != nil {
			return nil, err
		}
		modules = []models.Module{f.Module}
	}
	filterTags, err := models.NormalizeTags(f.Tags)
	if err != nil {
		return nil, err
	}
	f.Tags = filterTags

	unlock := s.d.Locks.Read()
	defer unlock()

	words := cryptox.Words(query)
	var toks []string
	if len(words) > 0 {
		key, err := s.d.key()
		if err != nil {
			return nil, err
		}
		if toks, err = queryTokens(words, key); err != nil {
			return nil, err
		}
	}

	var res *models.SearchResults
	q := records.SearchQuery{Text: strings.TrimSpace(query), Tokens: toks, Filter: f}

	auditModule := f.Module
	if auditModule == "" {
		auditModule = models.ModuleSystem
	}

	err = s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		res = &models.SearchResults{Groups: make(map[models.Module][]models.Summary)}
		for _, m := range modules {
			rows, err := repo.Search(ctx, m, q)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			group := make([]models.Summary, 0, len(rows))
			for _, r := range rows {
				group = append(group, models.Summarize(r.Record))
			}
			res.Groups[m] = group
			res.Total += len(group)
		}
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module: auditModule,
			Action: models.ActionSearch,
			Details: map[string]string{
				"terms": strconv.Itoa(len(words)),
				"total": strconv.Itoa(res.Total),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.d.committed(auditModule, models.ActionSearch)
	return res, nil
}

func (s *indexService) AddTag(ctx context.Context, m models.Module, id int64, tag string) error {
	return s.changeTags(ctx, m, id, tag, func(cur []string, t string) ([]string, error) {
		if slices.Contains(cur, t) {
			return nil, nil
		}
		if len(cur) >= models.MaxTagCount {
			return nil, fmt.Errorf("%w: record already has %d tags", common.ErrValidation, models.MaxTagCount)
		}
		return append(slices.Clone(cur), t), nil
	}, "tag_added")
}

func (s *indexService) RemoveTag(ctx context.Context, m models.Module, id int64, tag string) error {
	return s.changeTags(ctx, m, id, tag, func(cur []string, t string) ([]string, error) {
		i := slices.Index(cur, t)
		if i < 0 {
			return nil, nil
		}
		return slices.Delete(slices.Clone(cur), i, i+1), nil
	}, "tag_removed")
}

// changeTags applies edit to the record's tag list. A nil result from edit
// means nothing changed: the call succeeds without writing or auditing.
func (s *indexService) changeTags(ctx context.Context, m models.Module, id int64, tag string,
	edit func(cur []string, tag string) ([]string, error), detail string) error {
	if err := checkModule(m); err != nil {
		return err
	}
	t, err := models.NormalizeTag(tag)
	if err != nil {
		return err
	}

	unlock := s.d.Locks.Write(m)
	defer unlock()

	changed := false
	err = s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		row, err := repo.Get(ctx, m, id)
		if err != nil {
			return err
		}
		next, err := edit(row.Record.Envelope().Tags, t)
		if err != nil || next == nil {
			return err
		}

		if err := repo.SetTags(ctx, m, id, next); err != nil {
			return err
		}
		if err := tags.NewSQLiteRepository(tx).Replace(ctx, m, id, next); err != nil {
			return err
		}
		changed = true
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module:   m,
			Action:   models.ActionUpdate,
			RecordID: &id,
			Details:  map[string]string{detail: t},
		})
	})
	if err != nil {
		return err
	}
	if changed {
		s.d.committed(m, models.ActionUpdate)
	}
	return nil
}

func (s *indexService) SetFavorite(ctx context.Context, m models.Module, id int64, fav bool) error {
	if err := checkModule(m); err != nil {
		return err
	}

	unlock := s.d.Locks.Write(m)
	defer unlock()

	changed := false
	err := s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		changed, err = records.NewSQLiteRepository(tx).SetFavorite(ctx, m, id, fav)
		if err != nil || !changed {
			return err
		}
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module:   m,
			Action:   models.ActionUpdate,
			RecordID: &id,
			Details:  map[string]string{"favorite": strconv.FormatBool(fav)},
		})
	})
	if err != nil {
		return err
	}
	if changed {
		s.d.committed(m, models.ActionUpdate)
	}
	return nil
}

func (s *indexService) GetFavorites(ctx context.Context, m models.Module) ([]int64, error) {
	if err := checkModule(m); err != nil {
		return nil, err
	}
	unlock := s.d.Locks.Read()
	defer unlock()
	return records.NewSQLiteRepository(s.d.Runner.DB()).Favorites(ctx, m)
}

func (s *indexService) PopularTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	if limit <= 0 {
		limit = DefaultPopularTags
	}
	unlock := s.d.Locks.Read()
	defer unlock()
	return tags.NewSQLiteRepository(s.d.Runner.DB()).Popular(ctx, limit)
}

// FindTags returns the tags matching a shell-style pattern such as "work*"
// or "{home,family}", with their usage counts.
func (s *indexService) FindTags(ctx context.Context, pattern string) ([]models.TagCount, error) {
	g, err := glob.Compile(strings.ToLower(strings.TrimSpace(pattern)))
	if err != nil {
		return nil, fmt.Errorf("%w: tag pattern %q: %v", common.ErrValidation, pattern, err)
	}

	unlock := s.d.Locks.Read()
	defer unlock()

	all, err := tags.NewSQLiteRepository(s.d.Runner.DB()).Counts(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.TagCount
	for _, tc := range all {
		if g.Match(tc.Tag) {
			out = append(out, tc)
		}
	}
	return out, nil
}

// Rebuild recreates the tag index from the tags column of every record.
// Favorites need no rebuild: they are read from the records directly.
func (s *indexService) Rebuild(ctx context.Context) error {
	unlock := s.d.Locks.Write(append(models.Modules(), models.ModuleSystem)...)
	defer unlock()

	var total int
	err := s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		total = 0
		recs := records.NewSQLiteRepository(tx)
		idx := tags.NewSQLiteRepository(tx)
		if err := idx.Clear(ctx); err != nil {
			return err
		}
		for _, m := range models.Modules() {
			all, err := recs.AllTags(ctx, m)
			if err != nil {
				return err
			}
			for id, ts := range all {
				if err := idx.Replace(ctx, m, id, ts); err != nil {
					return err
				}
				total++
			}
		}
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module: models.ModuleSystem,
			Action: models.ActionUpdate,
			Details: map[string]string{
				"operation": "index_rebuild",
				"records":   strconv.Itoa(total),
			},
		})
	})
	if err != nil {
		return err
	}

	s.d.committed(models.ModuleSystem, models.ActionUpdate)
	s.d.Log.Info(ctx, "tag index rebuilt", "records", total)
	return nil
}
