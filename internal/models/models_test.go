package models

import (
	"math"
	"testing"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseModule(t *testing.T) {
	m, err := ParseModule(" Finance ")
	require.NoError(t, err)
	require.Equal(t, ModuleFinance, m)

	_, err = ParseModule("system")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestTimeLayout_LexicalOrderIsChronological(t *testing.T) {
	a := FormatTime(time.Date(2025, 1, 1, 9, 0, 0, 5, time.UTC))
	b := FormatTime(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
	require.Len(t, a, len(b))
	require.Less(t, a, b)

	back, err := ParseTime(a)
	require.NoError(t, err)
	require.Equal(t, 5, back.Nanosecond())
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{name: "lowercase and dedupe", in: []string{"Coffee", "coffee", " work "}, want: []string{"coffee", "work"}},
		{name: "empty list", in: nil, want: []string{}},
		{name: "blank tag", in: []string{"  "}, wantErr: true},
		{name: "too long", in: []string{string(make([]byte, 65))}, wantErr: true},
		{name: "invalid chars", in: []string{"a b"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTags(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.want, got))
		})
	}
}

func TestFromIngest_Transaction(t *testing.T) {
	rec, err := FromIngest(ModuleFinance,
		[]byte(`{"merchant":"STARBUCKS","account_number":"1234"}`),
		map[string]string{"amount": "1250.00", "category": "Food & Dining", "tags": "coffee,Work"},
		now)
	require.NoError(t, err)

	tx, ok := rec.(*Transaction)
	require.True(t, ok)
	require.True(t, decimal.RequireFromString("1250").Equal(tx.Amount))
	require.Equal(t, TransactionDebit, tx.Type)
	require.Equal(t, "STARBUCKS", tx.Merchant)
	require.Equal(t, "1234", tx.AccountNumber)
	require.Equal(t, []string{"coffee", "work"}, tx.Tags)
	require.Equal(t, now, tx.OccurredAt)
	require.Equal(t, "1250.00", tx.Plain()["amount"])
}

func TestFromIngest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		module  Module
		payload string
		md      map[string]string
	}{
		{"negative amount", ModuleFinance, `{}`, map[string]string{"amount": "-5"}},
		{"missing amount", ModuleFinance, `{}`, map[string]string{}},
		{"too large amount", ModuleFinance, `{}`, map[string]string{"amount": "1000000000001"}},
		{"three decimals", ModuleFinance, `{}`, map[string]string{"amount": "1.005"}},
		{"bad type", ModuleFinance, `{}`, map[string]string{"amount": "1", "transaction_type": "refund"}},
		{"unknown payload field", ModuleFinance, `{"cvv":"1"}`, map[string]string{"amount": "1"}},
		{"unknown metadata key", ModuleJournal, "text", map[string]string{"password": "x"}},
		{"empty journal", ModuleJournal, "  ", nil},
		{"sentiment out of range", ModuleJournal, "text", map[string]string{"sentiment_score": "1.5"}},
		{"sentiment not a number", ModuleJournal, "text", map[string]string{"sentiment_score": "NaN"}},
		{"sentiment infinite", ModuleJournal, "text", map[string]string{"sentiment_score": "-Inf"}},
		{"document without filename", ModuleDocuments, `{}`, map[string]string{"file_type": "pdf"}},
		{"bad date", ModuleJournal, "text", map[string]string{"entry_date": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromIngest(tt.module, []byte(tt.payload), tt.md, now)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestPayload_InverseOfIngest(t *testing.T) {
	in := `{"filepath":"/tmp/a.pdf","summary":"s"}`
	rec, err := FromIngest(ModuleDocuments, []byte(in),
		map[string]string{"filename": "a.pdf", "file_type": "pdf", "search_terms": "invoice, acme"}, now)
	require.NoError(t, err)
	require.Equal(t, []string{"invoice", "acme"}, rec.Envelope().SearchTerms)

	out, err := Payload(rec)
	require.NoError(t, err)
	require.JSONEq(t, in, string(out))
}

func TestSensitiveValue_RoundTripEveryField(t *testing.T) {
	for _, m := range Modules() {
		rec, err := New(m)
		require.NoError(t, err)
		for _, f := range SensitiveFields(m) {
			v := `["x"]`
			require.NoError(t, SetSensitiveValue(rec, f, v), "%s.%s", m, f)
			got, err := SensitiveValue(rec, f)
			require.NoError(t, err)
			require.Equal(t, v, got)
		}
		_, err = SensitiveValue(rec, Field("nope"))
		require.ErrorIs(t, err, common.ErrValidation)
	}
}

func TestPatches_ReportChangedSensitiveFields(t *testing.T) {
	content := "new text"
	score := 0.5
	j := &JournalEntry{Meta: Meta{Module: ModuleJournal}, Content: "old"}
	changed, err := JournalPatch{Content: &content, SentimentScore: &score}.Apply(j)
	require.NoError(t, err)
	require.Equal(t, []Field{FieldContent}, changed)
	require.Equal(t, 0.5, j.SentimentScore)

	cat := "Travel"
	tx := &Transaction{Meta: Meta{Module: ModuleFinance}, Amount: decimal.NewFromInt(1), Type: TransactionDebit, Category: "Other", OccurredAt: now}
	changed, err = TransactionPatch{Category: &cat}.Apply(tx)
	require.NoError(t, err)
	require.Empty(t, changed)
	require.Equal(t, "Travel", tx.Category)

	neg := decimal.NewFromInt(-1)
	_, err = TransactionPatch{Amount: &neg}.Apply(tx)
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = DocumentPatch{}.Apply(j)
	require.ErrorIs(t, err, common.ErrValidation)

	empty := ""
	require.ErrorIs(t, JournalPatch{Content: &empty}.Validate(), common.ErrValidation)

	nan := math.NaN()
	require.ErrorIs(t, JournalPatch{SentimentScore: &nan}.Validate(), common.ErrValidation)
}

func TestSummarize_ExcludesSensitive(t *testing.T) {
	tx := &Transaction{Meta: Meta{ID: 3, Module: ModuleFinance, Tags: []string{"a"}},
		Amount: decimal.NewFromInt(5), Type: TransactionCredit, Category: "Salary", Merchant: "ACME", OccurredAt: now}
	s := Summarize(tx)
	require.Equal(t, int64(3), s.ID)
	for _, v := range s.Plain {
		require.NotContains(t, v, "ACME")
	}
}
