// Package cli provides the interactive vault command line.
//
// It loads configuration, opens the vault (asking for the passphrase on
// first run) and either executes the single command given on the command
// line or starts a REPL reading commands from stdin.
//
// Commands take positional arguments followed by key=value options, e.g.
//
//	ingest finance amount=12.50 category=Food tags=coffee
//	search coffee module=finance from=2025-01-01
//	export all format=xlsx
//
// Type "help" in the REPL for the full list.
package cli
