package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/vault/internal/flagx"
)

// parseFlags overlays cfg with -d, -e, -t and -l. Arguments that are not
// among these flags, or -c/-config, are kept in cfg.Command.
func parseFlags(cfg *Config) {
	args, rest := flagx.Split(os.Args[1:], []string{"-d", "-e", "-t", "-l", "-c", "-config"})
	args = flagx.FilterArgs(args, []string{"-d", "-e", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.ExportDir, "e", cfg.ExportDir, "export directory")
	txTimeout := fs.Int("t", int(cfg.TxTimeout.Seconds()), "write transaction timeout (in seconds)")
	fs.StringVar(&cfg.LogFormat, "l", cfg.LogFormat, "log format: text, json or zap")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			if *txTimeout <= 0 {
				panic(fmt.Errorf("transaction timeout must be positive, got %d", *txTimeout))
			}
			cfg.TxTimeout = time.Duration(*txTimeout) * time.Second
		}
	})
	cfg.Command = rest
}
