package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/vault/internal/flagx"
	"github.com/dmitrijs2005/vault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from zero values.
type JsonConfig struct {
	DataDir         *string         `json:"data_dir"`
	ExportDir       *string         `json:"export_dir"`
	TxTimeout       *timex.Duration `json:"tx_timeout"`
	RotationTimeout *timex.Duration `json:"rotation_timeout"`
	BusyTimeout     *timex.Duration `json:"busy_timeout"`
	LogFormat       *string         `json:"log_format"`
	LogLevel        *string         `json:"log_level"`
	KeyringBackend  *string         `json:"keyring_backend"`
	KeyringService  *string         `json:"keyring_service"`
	PageSize        *int            `json:"page_size"`
}

// parseJson overlays cfg with the JSON file named by -c/-config. Without
// the flag nothing happens. Read or decode errors panic.
func parseJson(cfg *Config) {
	path := flagx.ConfigPath(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.ExportDir, jc.ExportDir)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.KeyringBackend, jc.KeyringBackend)
	setString(&cfg.KeyringService, jc.KeyringService)
	if jc.TxTimeout != nil {
		cfg.TxTimeout = jc.TxTimeout.Duration
	}
	if jc.RotationTimeout != nil {
		cfg.RotationTimeout = jc.RotationTimeout.Duration
	}
	if jc.BusyTimeout != nil {
		cfg.BusyTimeout = jc.BusyTimeout.Duration
	}
	if jc.PageSize != nil {
		cfg.PageSize = *jc.PageSize
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
