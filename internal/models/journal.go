package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
)

// JournalEntry is a diary entry. Content is sensitive; the mood fields are
// derived by the caller and stored in plaintext for filtering.
type JournalEntry struct {
	Meta

	Content        string
	MoodCategory   string
	SentimentScore float64
	EntryDate      time.Time
}

func (*JournalEntry) sealed() {}

func (e *JournalEntry) Validate() error {
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("%w: journal content is required", common.ErrValidation)
	}
	return e.validatePlain()
}

func (e *JournalEntry) validatePlain() error {
	if math.IsNaN(e.SentimentScore) || e.SentimentScore < -1 || e.SentimentScore > 1 {
		return fmt.Errorf("%w: sentiment score %v outside [-1, 1]", common.ErrValidation, e.SentimentScore)
	}
	if len(e.MoodCategory) > 64 {
		return fmt.Errorf("%w: mood category too long", common.ErrValidation)
	}
	return nil
}

func (e *JournalEntry) Plain() map[string]string {
	return map[string]string{
		"mood_category":   e.MoodCategory,
		"sentiment_score": strconv.FormatFloat(e.SentimentScore, 'f', -1, 64),
		"entry_date":      FormatTime(e.EntryDate),
	}
}
