package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd", "-d", "/v", "-e", "/x", "-t", "20", "-l", "zap"},
			expected: &Config{DataDir: "/v", ExportDir: "/x", TxTimeout: 20 * time.Second, LogFormat: "zap", Command: []string{}}},
		{name: "positional arguments kept", args: []string{"cmd", "export", "all", "-l=json"},
			expected: &Config{LogFormat: "json", TxTimeout: time.Second, Command: []string{"export", "all"}}},
		{name: "bad timeout", args: []string{"cmd", "-t", "abc"}, expectPanic: true},
		{name: "zero timeout", args: []string{"cmd", "-t", "0"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)
			os.Args = tt.args

			config := &Config{TxTimeout: time.Second}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
