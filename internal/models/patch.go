package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/shopspring/decimal"
)

// Patch is a partial update of one record variant. Nil fields are left
// unchanged. Tags and favorite state are changed through the index
// operations, not through patches.
type Patch interface {
	Module() Module
	Validate() error
	// Apply writes the set values into r and reports which sensitive fields
	// changed and therefore need re-encryption.
	Apply(r Record) ([]Field, error)
}

// CommonPatch carries envelope changes shared by every variant.
type CommonPatch struct {
	SearchTerms *[]string
}

func (p CommonPatch) apply(m *Meta) []Field {
	if p.SearchTerms == nil {
		return nil
	}
	m.SearchTerms = CleanTerms(*p.SearchTerms)
	return []Field{FieldSearchTerms}
}

func wrongVariant(p Patch, r Record) error {
	return fmt.Errorf("%w: %s patch applied to %s record", common.ErrValidation, p.Module(), r.Envelope().Module)
}

type JournalPatch struct {
	CommonPatch
	Content        *string
	MoodCategory   *string
	SentimentScore *float64
	EntryDate      *time.Time
}

func (JournalPatch) Module() Module { return ModuleJournal }

func (p JournalPatch) Validate() error {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return fmt.Errorf("%w: journal content cannot be emptied", common.ErrValidation)
	}
	candidate := JournalEntry{}
	if p.SentimentScore != nil {
		candidate.SentimentScore = *p.SentimentScore
	}
	if p.MoodCategory != nil {
		candidate.MoodCategory = *p.MoodCategory
	}
	return candidate.validatePlain()
}

func (p JournalPatch) Apply(r Record) ([]Field, error) {
	e, ok := r.(*JournalEntry)
	if !ok {
		return nil, wrongVariant(p, r)
	}
	changed := p.apply(&e.Meta)
	if p.Content != nil {
		e.Content = *p.Content
		changed = append(changed, FieldContent)
	}
	if p.MoodCategory != nil {
		e.MoodCategory = *p.MoodCategory
	}
	if p.SentimentScore != nil {
		e.SentimentScore = *p.SentimentScore
	}
	if p.EntryDate != nil {
		e.EntryDate = p.EntryDate.UTC()
	}
	return changed, nil
}

type TransactionPatch struct {
	CommonPatch
	Amount        *decimal.Decimal
	Type          *TransactionType
	Category      *string
	OccurredAt    *time.Time
	Merchant      *string
	Description   *string
	AccountNumber *string
}

func (TransactionPatch) Module() Module { return ModuleFinance }

// Validate is a no-op: a transaction patch is checked against the merged
// record in Apply.
func (p TransactionPatch) Validate() error { return nil }

func (p TransactionPatch) Apply(r Record) ([]Field, error) {
	t, ok := r.(*Transaction)
	if !ok {
		return nil, wrongVariant(p, r)
	}
	changed := p.apply(&t.Meta)
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.OccurredAt != nil {
		t.OccurredAt = p.OccurredAt.UTC()
	}
	if p.Merchant != nil {
		t.Merchant = *p.Merchant
		changed = append(changed, FieldMerchant)
	}
	if p.Description != nil {
		t.Description = *p.Description
		changed = append(changed, FieldDescription)
	}
	if p.AccountNumber != nil {
		t.AccountNumber = *p.AccountNumber
		changed = append(changed, FieldAccountNumber)
	}
	return changed, t.Validate()
}

type DocumentPatch struct {
	CommonPatch
	Filename    *string
	FileType    *string
	ProcessedAt *time.Time
	FilePath    *string
	Content     *string
	Summary     *string
	Entities    *string
}

func (DocumentPatch) Module() Module { return ModuleDocuments }

func (p DocumentPatch) Validate() error {
	if p.Filename != nil && strings.TrimSpace(*p.Filename) == "" {
		return fmt.Errorf("%w: filename is required", common.ErrValidation)
	}
	if p.FileType != nil && strings.TrimSpace(*p.FileType) == "" {
		return fmt.Errorf("%w: file type is required", common.ErrValidation)
	}
	return nil
}

func (p DocumentPatch) Apply(r Record) ([]Field, error) {
	d, ok := r.(*DocumentMeta)
	if !ok {
		return nil, wrongVariant(p, r)
	}
	changed := p.apply(&d.Meta)
	if p.Filename != nil {
		d.Filename = *p.Filename
	}
	if p.FileType != nil {
		d.FileType = *p.FileType
	}
	if p.ProcessedAt != nil {
		d.ProcessedAt = p.ProcessedAt.UTC()
	}
	set := func(dst *string, src *string, f Field) {
		if src != nil {
			*dst = *src
			changed = append(changed, f)
		}
	}
	set(&d.FilePath, p.FilePath, FieldFilePath)
	set(&d.Content, p.Content, FieldContent)
	set(&d.Summary, p.Summary, FieldSummary)
	set(&d.Entities, p.Entities, FieldEntities)
	return changed, nil
}
