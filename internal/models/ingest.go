package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/shopspring/decimal"
)

// Metadata keys understood by FromIngest, besides the per-module ones:
//
//	tags          comma-separated tag list
//	search_terms  comma-separated searchable excerpt, stored encrypted
//
// journal:   mood_category, sentiment_score, entry_date
// finance:   amount (required), transaction_type, category, occurred_at
// documents: filename (required), file_type (required), processed_at
//
// Unknown keys are rejected so nothing sensitive ends up silently dropped
// or mistaken for plaintext metadata.
const (
	MetaTags        = "tags"
	MetaSearchTerms = "search_terms"
)

// TransactionPayload is the sensitive part of a finance ingest.
type TransactionPayload struct {
	Merchant      string `json:"merchant"`
	Description   string `json:"description,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

// DocumentPayload is the sensitive part of a documents ingest.
type DocumentPayload struct {
	FilePath string `json:"filepath,omitempty"`
	Content  string `json:"content,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Entities string `json:"entities,omitempty"`
}

var moduleKeys = map[Module][]string{
	ModuleJournal:   {"mood_category", "sentiment_score", "entry_date"},
	ModuleFinance:   {"amount", "transaction_type", "category", "occurred_at"},
	ModuleDocuments: {"filename", "file_type", "processed_at"},
}

// FromIngest builds a record from a collaborator payload and plain metadata.
// Journal payloads are the entry text; finance and documents payloads are a
// JSON object of the module's sensitive fields.
func FromIngest(m Module, payload []byte, md map[string]string, now time.Time) (Record, error) {
	if err := checkKeys(m, md); err != nil {
		return nil, err
	}

	rec, err := New(m)
	if err != nil {
		return nil, err
	}

	env := rec.Envelope()
	if env.Tags, err = NormalizeTags(SplitList(md[MetaTags])); err != nil {
		return nil, err
	}
	env.SearchTerms = CleanTerms(SplitList(md[MetaSearchTerms]))

	timeOr := func(key string) (time.Time, error) {
		if v, ok := md[key]; ok && v != "" {
			return ParseUserTime(v)
		}
		return now.UTC(), nil
	}

	switch r := rec.(type) {
	case *JournalEntry:
		r.Content = string(payload)
		r.MoodCategory = md["mood_category"]
		if v := md["sentiment_score"]; v != "" {
			if r.SentimentScore, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("%w: sentiment_score %q", common.ErrValidation, v)
			}
		}
		if r.EntryDate, err = timeOr("entry_date"); err != nil {
			return nil, err
		}

	case *Transaction:
		var p TransactionPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		r.Merchant, r.Description, r.AccountNumber = p.Merchant, p.Description, p.AccountNumber

		v, ok := md["amount"]
		if !ok || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: amount is required", common.ErrValidation)
		}
		if r.Amount, err = decimal.NewFromString(strings.TrimSpace(v)); err != nil {
			return nil, fmt.Errorf("%w: amount %q", common.ErrValidation, v)
		}
		r.Type = TransactionType(strings.ToLower(md["transaction_type"]))
		if r.Type == "" {
			r.Type = TransactionDebit
		}
		r.Category = md["category"]
		if r.Category == "" {
			r.Category = DefaultCategory
		}
		if r.OccurredAt, err = timeOr("occurred_at"); err != nil {
			return nil, err
		}

	case *DocumentMeta:
		var p DocumentPayload
		if err := decodePayload(payload, &p); err != nil {
			return nil, err
		}
		r.FilePath, r.Content, r.Summary, r.Entities = p.FilePath, p.Content, p.Summary, p.Entities
		r.Filename = md["filename"]
		r.FileType = md["file_type"]
		if r.ProcessedAt, err = timeOr("processed_at"); err != nil {
			return nil, err
		}
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Payload is the inverse of FromIngest for the sensitive part of r.
func Payload(r Record) ([]byte, error) {
	switch v := r.(type) {
	case *JournalEntry:
		return []byte(v.Content), nil
	case *Transaction:
		return json.Marshal(TransactionPayload{Merchant: v.Merchant, Description: v.Description, AccountNumber: v.AccountNumber})
	case *DocumentMeta:
		return json.Marshal(DocumentPayload{FilePath: v.FilePath, Content: v.Content, Summary: v.Summary, Entities: v.Entities})
	}
	return nil, fmt.Errorf("%w: unknown record variant %T", common.ErrValidation, r)
}

func checkKeys(m Module, md map[string]string) error {
	allowed, ok := moduleKeys[m]
	if !ok {
		return fmt.Errorf("%w: unknown module %q", common.ErrValidation, m)
	}
	for k := range md {
		if k == MetaTags || k == MetaSearchTerms {
			continue
		}
		found := false
		for _, a := range allowed {
			if a == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown %s metadata key %q", common.ErrValidation, m, k)
		}
	}
	return nil
}

func decodePayload(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: payload: %v", common.ErrValidation, err)
	}
	return nil
}
