package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
)

// ActionType classifies an audit entry.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionRead   ActionType = "read"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionExport ActionType = "export"
	ActionSearch ActionType = "search"
)

// Actions lists every action type.
func Actions() []ActionType {
	return []ActionType{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport, ActionSearch}
}

// ParseAction accepts an action name.
func ParseAction(s string) (ActionType, error) {
	for _, a := range Actions() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", common.ErrValidation, s)
}

// AuditEntry is one immutable line of the access log. Details hold only
// descriptive, non-sensitive values such as field names or counts.
type AuditEntry struct {
	ID        int64
	EventID   string
	Timestamp time.Time
	Module    Module
	Action    ActionType
	RecordID  *int64
	Details   map[string]string
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	From   time.Time
	To     time.Time
	Module Module
	Action ActionType
	Limit  int
}

// AuditReport summarizes the log for transparency views.
type AuditReport struct {
	Since    time.Time
	Total    int
	ByModule map[Module]int
	ByAction map[ActionType]int
	Recent   []AuditEntry
}
