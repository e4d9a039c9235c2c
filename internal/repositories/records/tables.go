package records

import (
	"fmt"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/shopspring/decimal"
)

type sealedColumn struct {
	field  models.Field
	column string
}

// table maps a record variant onto its SQL table.
type table struct {
	name   string
	plain  []string
	sealed []sealedColumn
	// text lists plain columns matched by free-text search.
	text []string

	values func(r models.Record) []any
	scan   func(r models.Record) (dest []any, finish func() error)
}

var tables = map[models.Module]*table{
	models.ModuleJournal: {
		name:  "journal_entries",
		plain: []string{"mood_category", "sentiment_score", "entry_date"},
		sealed: []sealedColumn{
			{models.FieldContent, "content_enc"},
			{models.FieldSearchTerms, "terms_enc"},
		},
		text: []string{"mood_category"},
		values: func(r models.Record) []any {
			e := r.(*models.JournalEntry)
			return []any{e.MoodCategory, e.SentimentScore, models.FormatTime(e.EntryDate)}
		},
		scan: func(r models.Record) ([]any, func() error) {
			e := r.(*models.JournalEntry)
			var entryDate string
			return []any{&e.MoodCategory, &e.SentimentScore, &entryDate}, func() (err error) {
				e.EntryDate, err = models.ParseTime(entryDate)
				return err
			}
		},
	},
	models.ModuleFinance: {
		name:  "transactions",
		plain: []string{"amount", "transaction_type", "category", "occurred_at"},
		sealed: []sealedColumn{
			{models.FieldMerchant, "merchant_enc"},
			{models.FieldDescription, "description_enc"},
			{models.FieldAccountNumber, "account_number_enc"},
			{models.FieldSearchTerms, "terms_enc"},
		},
		text: []string{"category", "transaction_type"},
		values: func(r models.Record) []any {
			t := r.(*models.Transaction)
			return []any{t.Amount.StringFixed(2), string(t.Type), t.Category, models.FormatTime(t.OccurredAt)}
		},
		scan: func(r models.Record) ([]any, func() error) {
			t := r.(*models.Transaction)
			var amount, typ, occurred string
			return []any{&amount, &typ, &t.Category, &occurred}, func() (err error) {
				if t.Amount, err = decimal.NewFromString(amount); err != nil {
					return err
				}
				t.Type = models.TransactionType(typ)
				t.OccurredAt, err = models.ParseTime(occurred)
				return err
			}
		},
	},
	models.ModuleDocuments: {
		name:  "documents",
		plain: []string{"filename", "file_type", "processed_at"},
		sealed: []sealedColumn{
			{models.FieldFilePath, "filepath_enc"},
			{models.FieldContent, "content_enc"},
			{models.FieldSummary, "summary_enc"},
			{models.FieldEntities, "entities_enc"},
			{models.FieldSearchTerms, "terms_enc"},
		},
		text: []string{"filename", "file_type"},
		values: func(r models.Record) []any {
			d := r.(*models.DocumentMeta)
			return []any{d.Filename, d.FileType, models.FormatTime(d.ProcessedAt)}
		},
		scan: func(r models.Record) ([]any, func() error) {
			d := r.(*models.DocumentMeta)
			var processed string
			return []any{&d.Filename, &d.FileType, &processed}, func() (err error) {
				d.ProcessedAt, err = models.ParseTime(processed)
				return err
			}
		},
	},
}

func tableFor(m models.Module) (*table, error) {
	t, ok := tables[m]
	if !ok {
		return nil, fmt.Errorf("%w: unknown module %q", common.ErrValidation, m)
	}
	return t, nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
