// Package logging defines a minimal structured-logging interface used across
// the vault, with slog and zap implementations.
package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "record inserted", "module", m, "id", id)
//
// Callers must never pass sensitive payload values. As a backstop, both
// implementations mask the value of any key listed in sensitiveKeys.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Mask replaces the value of a sensitive key.
const Mask = "[redacted]"

var sensitiveKeys = map[string]struct{}{
	"passphrase":     {},
	"master_key":     {},
	"payload":        {},
	"content":        {},
	"merchant":       {},
	"description":    {},
	"account_number": {},
	"filepath":       {},
	"summary":        {},
	"entities":       {},
	"search_terms":   {},
}

// Redact returns args with every sensitive value masked. Pairs are "key",
// value; a slog.Attr counts as one complete pair. args itself is never
// modified.
func Redact(args []any) []any {
	var out []any
	mask := func(i int, v any) {
		if out == nil {
			out = slices.Clone(args)
		}
		out[i] = v
	}

	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			if isSensitive(a.Key) {
				mask(i, slog.String(a.Key, Mask))
			}
		case string:
			if i+1 < len(args) && isSensitive(a) {
				mask(i+1, Mask)
			}
			i++
		}
	}
	if out == nil {
		return args
	}
	return out
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}
