package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListFilter narrows a module listing. Zero values mean "any".
type ListFilter struct {
	From         time.Time
	To           time.Time
	Tags         []string
	FavoriteOnly bool
}

// SearchFilter narrows a cross-module search.
type SearchFilter struct {
	From   time.Time
	To     time.Time
	Tags   []string
	Module Module
}

// Summary is the non-sensitive view of a record returned by search.
type Summary struct {
	ID         int64
	Module     Module
	CreatedAt  time.Time
	IsFavorite bool
	Tags       []string
	Plain      map[string]string
}

// Summarize builds the search view of r. No sensitive field is included.
func Summarize(r Record) Summary {
	m := r.Envelope()
	return Summary{
		ID:         m.ID,
		Module:     m.Module,
		CreatedAt:  m.CreatedAt,
		IsFavorite: m.IsFavorite,
		Tags:       append([]string(nil), m.Tags...),
		Plain:      r.Plain(),
	}
}

// SearchResults groups matches per module, most recent first.
type SearchResults struct {
	Groups map[Module][]Summary
	Total  int
}

// TagCount is one row of the popular tags view.
type TagCount struct {
	Tag   string
	Count int
}

// CategorySpending aggregates debit amounts per category.
type CategorySpending struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// MoodStat aggregates journal entries per mood category.
type MoodStat struct {
	MoodCategory string
	Count        int
	AvgSentiment float64
}
