package cli

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/shopspring/decimal"
)

// args is a parsed command line: positional words in order, then key=value
// options. A repeated option keeps its last value.
type args struct {
	pos  []string
	opts map[string]string
}

func parseArgs(in []string) args {
	a := args{opts: make(map[string]string)}
	for _, s := range in {
		if k, v, ok := strings.Cut(s, "="); ok && k != "" {
			a.opts[strings.ToLower(k)] = v
			continue
		}
		a.pos = append(a.pos, s)
	}
	return a
}

func usageError(cmd string) error {
	return fmt.Errorf("%w: usage: %s", common.ErrValidation, usages[cmd])
}

// only rejects options outside allowed.
func (a args) only(allowed ...string) error {
	for k := range a.opts {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("%w: unknown option %q", common.ErrValidation, k)
		}
	}
	return nil
}

func (a args) time(key string) (time.Time, error) {
	v, ok := a.opts[key]
	if !ok || v == "" {
		return time.Time{}, nil
	}
	return models.ParseUserTime(v)
}

func (a args) int(key string, def int) (int, error) {
	v, ok := a.opts[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", common.ErrValidation, key)
	}
	return n, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad record id %q", common.ErrValidation, s)
	}
	return id, nil
}

// moduleAndID reads "<module> <id>" from the first two positional words.
func (a args) moduleAndID(cmd string) (models.Module, int64, error) {
	if len(a.pos) < 2 {
		return "", 0, usageError(cmd)
	}
	m, err := models.ParseModule(a.pos[0])
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(a.pos[1])
	if err != nil {
		return "", 0, err
	}
	return m, id, nil
}

// parsePatch builds the patch variant of m from key=value options. Keys
// are the plain metadata names and the sensitive field names of m, plus
// search_terms.
func parsePatch(m models.Module, opts map[string]string) (models.Patch, error) {
	if len(opts) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}

	opts = maps.Clone(opts)
	var (
		cp  models.CommonPatch
		err error
	)
	str := func(k string) *string {
		v, ok := opts[k]
		if !ok {
			return nil
		}
		delete(opts, k)
		return &v
	}
	tm := func(k string) *time.Time {
		v := str(k)
		if v == nil || err != nil {
			return nil
		}
		t, perr := models.ParseUserTime(*v)
		if perr != nil {
			err = perr
			return nil
		}
		return &t
	}
	if v := str(models.MetaSearchTerms); v != nil {
		terms := models.SplitList(*v)
		cp.SearchTerms = &terms
	}

	var p models.Patch
	switch m {
	case models.ModuleJournal:
		jp := models.JournalPatch{CommonPatch: cp}
		jp.Content = str("content")
		jp.MoodCategory = str("mood_category")
		if v := str("sentiment_score"); v != nil {
			f, perr := strconv.ParseFloat(*v, 64)
			if perr != nil {
				return nil, fmt.Errorf("%w: sentiment_score %q", common.ErrValidation, *v)
			}
			jp.SentimentScore = &f
		}
		jp.EntryDate = tm("entry_date")
		p = jp

	case models.ModuleFinance:
		tp := models.TransactionPatch{CommonPatch: cp}
		if v := str("amount"); v != nil {
			d, perr := decimal.NewFromString(*v)
			if perr != nil {
				return nil, fmt.Errorf("%w: amount %q", common.ErrValidation, *v)
			}
			tp.Amount = &d
		}
		if v := str("transaction_type"); v != nil {
			t := models.TransactionType(strings.ToLower(*v))
			tp.Type = &t
		}
		tp.Category = str("category")
		tp.OccurredAt = tm("occurred_at")
		tp.Merchant = str("merchant")
		tp.Description = str("description")
		tp.AccountNumber = str("account_number")
		p = tp

	case models.ModuleDocuments:
		dp := models.DocumentPatch{CommonPatch: cp}
		dp.Filename = str("filename")
		dp.FileType = str("file_type")
		dp.ProcessedAt = tm("processed_at")
		dp.FilePath = str("filepath")
		dp.Content = str("content")
		dp.Summary = str("summary")
		dp.Entities = str("entities")
		p = dp

	default:
		return nil, fmt.Errorf("%w: unknown module %q", common.ErrValidation, m)
	}

	if err != nil {
		return nil, err
	}
	if len(opts) > 0 {
		left := slices.Sorted(maps.Keys(opts))
		return nil, fmt.Errorf("%w: %s has no field %q", common.ErrValidation, m, left[0])
	}
	return p, nil
}
