package services

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/cryptox"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/repositories/records"
)

// sealFields encrypts the listed sensitive fields of rec. Empty values seal
// to nil and are stored as NULL.
func sealFields(rec models.Record, fields []models.Field, key []byte) (records.Sealed, error) {
	out := make(records.Sealed, len(fields))
	for _, f := range fields {
		plain, err := models.SensitiveValue(rec, f)
		if err != nil {
			return nil, err
		}
		blob, err := cryptox.Seal(plain, key)
		if err != nil {
			return nil, fmt.Errorf("failed to seal %s: %w", f, err)
		}
		out[f] = blob
	}
	return out, nil
}

// openFields decrypts the listed fields of row into row.Record.
func openFields(row *records.Row, fields []models.Field, key []byte) error {
	for _, f := range fields {
		plain, err := cryptox.Open(row.Sealed[f], key)
		if err != nil {
			env := row.Record.Envelope()
			return fmt.Errorf("%s record %d field %s: %w", env.Module, env.ID, f, err)
		}
		if err := models.SetSensitiveValue(row.Record, f, plain); err != nil {
			return fmt.Errorf("%w: %s field %s holds malformed plaintext", common.ErrAuthentication, row.Record.Envelope().Module, f)
		}
	}
	return nil
}

// tokenTexts returns the plaintexts whose words feed the blind index. The
// record's token fields must already be populated.
func tokenTexts(rec models.Record) []string {
	var texts []string
	for _, f := range models.TokenFields(rec.Envelope().Module) {
		if f == models.FieldSearchTerms {
			texts = append(texts, rec.Envelope().SearchTerms...)
			continue
		}
		if v, err := models.SensitiveValue(rec, f); err == nil && v != "" {
			texts = append(texts, v)
		}
	}
	return texts
}

// blindTokens computes the index tokens of rec under key. The result is
// never nil, so callers can use it to clear the column.
func blindTokens(rec models.Record, key []byte) ([]string, error) {
	ik, err := cryptox.IndexKey(key)
	if err != nil {
		return nil, err
	}
	toks := cryptox.BlindTokens(ik, tokenTexts(rec)...)
	if toks == nil {
		toks = []string{}
	}
	return toks, nil
}

// queryTokens maps query words to tokens under key.
func queryTokens(words []string, key []byte) ([]string, error) {
	ik, err := cryptox.IndexKey(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, cryptox.BlindToken(ik, w))
	}
	return out, nil
}

func fieldNames(fields []models.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ",")
}
