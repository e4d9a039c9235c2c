// Package config loads runtime configuration for the vault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   data directory holding vault.db and vault.salt
//	-e string   directory for export artifacts
//	-t int      write transaction timeout (seconds)
//	-l string   log format: text, json or zap
//
// # JSON schema
//
// Durations are timex.Duration values, so "10s" and integer nanoseconds are
// both accepted. Absent keys keep their defaults.
//
//	{
//	  "data_dir": "/home/me/.vault",
//	  "export_dir": "/home/me/vault-exports",
//	  "tx_timeout": "10s",
//	  "rotation_timeout": "5m",
//	  "busy_timeout": "5s",
//	  "log_format": "text",
//	  "log_level": "info",
//	  "keyring_backend": "file",
//	  "keyring_service": "vault",
//	  "page_size": 100
//	}
package config
