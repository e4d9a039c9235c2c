package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/vault/internal/common"
)

const (
	MaxTagLength = 64
	MaxTagCount  = 32
	MaxTerms     = 64
)

var tagRegex = regexp.MustCompile(`^[\p{L}\p{N}_.:/-]+$`)

// NormalizeTag trims and lower-cases a tag and checks its shape.
func NormalizeTag(tag string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(tag))
	n := utf8.RuneCountInString(t)
	if n == 0 || n > MaxTagLength {
		return "", fmt.Errorf("%w: tag %q must be 1..%d characters", common.ErrValidation, tag, MaxTagLength)
	}
	if !tagRegex.MatchString(t) {
		return "", fmt.Errorf("%w: tag %q contains invalid characters", common.ErrValidation, tag)
	}
	return t, nil
}

// NormalizeTags normalizes a tag list, dropping duplicates and keeping the
// first occurrence order.
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, raw := range tags {
		t, err := NormalizeTag(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > MaxTagCount {
		return nil, fmt.Errorf("%w: %d tags exceeds maximum of %d", common.ErrValidation, len(out), MaxTagCount)
	}
	return out, nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CleanTerms trims search terms and drops blanks. The result is capped at
// MaxTerms entries.
func CleanTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > MaxTerms {
		out = out[:MaxTerms]
	}
	return out
}
