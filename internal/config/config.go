package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the vault.
type Config struct {
	DataDir   string
	ExportDir string

	// TxTimeout bounds every write transaction; RotationTimeout bounds the
	// single transaction that re-encrypts the store.
	TxTimeout       time.Duration
	RotationTimeout time.Duration
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration

	LogFormat string
	LogLevel  string

	// KeyringBackend restricts the credential store to one backend; empty
	// lets the platform choose.
	KeyringBackend string
	KeyringService string

	PageSize int

	// Command holds the positional arguments left after flag parsing.
	Command []string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	base := ".vault"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".vault")
	}
	c.DataDir = base
	c.ExportDir = ""
	c.TxTimeout = 10 * time.Second
	c.RotationTimeout = 5 * time.Minute
	c.BusyTimeout = 5 * time.Second
	c.LogFormat = "text"
	c.LogLevel = "info"
	c.KeyringBackend = ""
	c.KeyringService = "vault"
	c.PageSize = 100
}

// DBPath is the database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "vault.db")
}

// SaltPath is the key-derivation salt file next to the database.
func (c *Config) SaltPath() string {
	return filepath.Join(c.DataDir, "vault.salt")
}

// ExportPath is ExportDir, or DataDir/exports when unset.
func (c *Config) ExportPath() string {
	if c.ExportDir != "" {
		return c.ExportDir
	}
	return filepath.Join(c.DataDir, "exports")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
