package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a money movement.
type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// DefaultCategory is used when the caller supplies none.
const DefaultCategory = "Other"

// MaxAmount bounds a single transaction amount.
var MaxAmount = decimal.New(1, 12)

// Transaction is a financial movement. Merchant, description and account
// number are sensitive; amount, type and category stay in plaintext so
// spending can be aggregated without decryption.
type Transaction struct {
	Meta

	Amount     decimal.Decimal
	Type       TransactionType
	Category   string
	OccurredAt time.Time

	Merchant      string
	Description   string
	AccountNumber string
}

func (*Transaction) sealed() {}

func (t *Transaction) Validate() error {
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: amount %s is negative", common.ErrValidation, t.Amount)
	}
	if t.Amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: amount %s exceeds %s", common.ErrValidation, t.Amount, MaxAmount)
	}
	if !t.Amount.Equal(t.Amount.Round(2)) {
		return fmt.Errorf("%w: amount %s has more than two decimals", common.ErrValidation, t.Amount)
	}
	switch t.Type {
	case TransactionDebit, TransactionCredit:
	default:
		return fmt.Errorf("%w: transaction type %q", common.ErrValidation, t.Type)
	}
	if strings.TrimSpace(t.Category) == "" {
		return fmt.Errorf("%w: category is required", common.ErrValidation)
	}
	if t.OccurredAt.IsZero() {
		return fmt.Errorf("%w: transaction date is required", common.ErrValidation)
	}
	return nil
}

func (t *Transaction) Plain() map[string]string {
	return map[string]string{
		"amount":           t.Amount.StringFixed(2),
		"transaction_type": string(t.Type),
		"category":         t.Category,
		"occurred_at":      FormatTime(t.OccurredAt),
	}
}
