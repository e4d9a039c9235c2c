package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
)

// Meta is the envelope shared by every record variant.
type Meta struct {
	// ID is assigned by the store on insert, unique within Module and never
	// changed afterwards.
	ID     int64
	Module Module

	// CreatedAt is set by the store in UTC.
	CreatedAt time.Time

	// IsFavorite is the single source of truth for favorite membership.
	IsFavorite bool

	// Tags are normalized, unique and kept in insertion order.
	Tags []string

	// SearchTerms is an optional searchable excerpt supplied by the caller.
	// It is stored encrypted and indexed only as blind tokens.
	SearchTerms []string
}

// Envelope gives access to the common metadata of any variant.
func (m *Meta) Envelope() *Meta { return m }

// Record is the closed set of storable variants: *JournalEntry,
// *Transaction and *DocumentMeta.
type Record interface {
	Envelope() *Meta
	// Validate checks the plaintext fields required on insert.
	Validate() error
	// Plain returns the non-sensitive metadata as display strings.
	Plain() map[string]string

	sealed()
}

// Field names a sensitive, encrypted-at-rest value of a record.
type Field string

const (
	FieldSearchTerms   Field = "terms"
	FieldContent       Field = "content"
	FieldMerchant      Field = "merchant"
	FieldDescription   Field = "description"
	FieldAccountNumber Field = "account_number"
	FieldFilePath      Field = "filepath"
	FieldSummary       Field = "summary"
	FieldEntities      Field = "entities"
)

// SensitiveFields lists the encrypted fields of a module.
func SensitiveFields(m Module) []Field {
	switch m {
	case ModuleJournal:
		return []Field{FieldContent, FieldSearchTerms}
	case ModuleFinance:
		return []Field{FieldMerchant, FieldDescription, FieldAccountNumber, FieldSearchTerms}
	case ModuleDocuments:
		return []Field{FieldFilePath, FieldContent, FieldSummary, FieldEntities, FieldSearchTerms}
	}
	return nil
}

// TokenFields lists the sensitive fields whose words feed the blind index.
func TokenFields(m Module) []Field {
	if m == ModuleFinance {
		return []Field{FieldMerchant, FieldSearchTerms}
	}
	return []Field{FieldSearchTerms}
}

// New returns an empty record of the module's variant.
func New(m Module) (Record, error) {
	switch m {
	case ModuleJournal:
		return &JournalEntry{Meta: Meta{Module: m}}, nil
	case ModuleFinance:
		return &Transaction{Meta: Meta{Module: m}}, nil
	case ModuleDocuments:
		return &DocumentMeta{Meta: Meta{Module: m}}, nil
	}
	return nil, fmt.Errorf("%w: unknown module %q", common.ErrValidation, m)
}

// SensitiveValue returns the plaintext of field f.
func SensitiveValue(r Record, f Field) (string, error) {
	if f == FieldSearchTerms {
		terms := r.Envelope().SearchTerms
		if len(terms) == 0 {
			return "", nil
		}
		b, err := json.Marshal(terms)
		return string(b), err
	}

	switch v := r.(type) {
	case *JournalEntry:
		if f == FieldContent {
			return v.Content, nil
		}
	case *Transaction:
		switch f {
		case FieldMerchant:
			return v.Merchant, nil
		case FieldDescription:
			return v.Description, nil
		case FieldAccountNumber:
			return v.AccountNumber, nil
		}
	case *DocumentMeta:
		switch f {
		case FieldFilePath:
			return v.FilePath, nil
		case FieldContent:
			return v.Content, nil
		case FieldSummary:
			return v.Summary, nil
		case FieldEntities:
			return v.Entities, nil
		}
	}
	return "", fmt.Errorf("%w: field %q not in module %q", common.ErrValidation, f, r.Envelope().Module)
}

// SetSensitiveValue stores a decrypted plaintext into field f.
func SetSensitiveValue(r Record, f Field, s string) error {
	if f == FieldSearchTerms {
		if s == "" {
			r.Envelope().SearchTerms = nil
			return nil
		}
		return json.Unmarshal([]byte(s), &r.Envelope().SearchTerms)
	}

	switch v := r.(type) {
	case *JournalEntry:
		if f == FieldContent {
			v.Content = s
			return nil
		}
	case *Transaction:
		switch f {
		case FieldMerchant:
			v.Merchant = s
			return nil
		case FieldDescription:
			v.Description = s
			return nil
		case FieldAccountNumber:
			v.AccountNumber = s
			return nil
		}
	case *DocumentMeta:
		switch f {
		case FieldFilePath:
			v.FilePath = s
			return nil
		case FieldContent:
			v.Content = s
			return nil
		case FieldSummary:
			v.Summary = s
			return nil
		case FieldEntities:
			v.Entities = s
			return nil
		}
	}
	return fmt.Errorf("%w: field %q not in module %q", common.ErrValidation, f, r.Envelope().Module)
}

// ContainsField reports whether fields includes f.
func ContainsField(fields []Field, f Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
