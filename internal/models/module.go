// Package models defines the record variants stored in the vault, their
// common metadata envelope, patches, audit entries and query shapes.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
)

// Module names a record family. Every module has its own table and its own
// id sequence.
type Module string

const (
	ModuleJournal   Module = "journal"
	ModuleFinance   Module = "finance"
	ModuleDocuments Module = "documents"

	// ModuleSystem appears only in audit entries for vault-wide events such as
	// key rotation or audit retention.
	ModuleSystem Module = "system"
)

// Modules lists the data modules in display order.
func Modules() []Module {
	return []Module{ModuleJournal, ModuleFinance, ModuleDocuments}
}

// Valid reports whether m is a data module.
func (m Module) Valid() bool {
	switch m {
	case ModuleJournal, ModuleFinance, ModuleDocuments:
		return true
	}
	return false
}

// ParseModule accepts a data module name, case-insensitively.
func ParseModule(s string) (Module, error) {
	m := Module(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown module %q", common.ErrValidation, s)
	}
	return m, nil
}

// TimeLayout is the fixed-width UTC layout used for every stored timestamp,
// so lexical order in SQL equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// ParseUserTime accepts RFC 3339 timestamps and plain dates.
func ParseUserTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad time %q", common.ErrValidation, s)
}
