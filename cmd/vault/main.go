package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/vault/internal/buildinfo"
	"github.com/dmitrijs2005/vault/internal/cli"
	"github.com/dmitrijs2005/vault/internal/config"
	"github.com/dmitrijs2005/vault/internal/logging"
	"github.com/dmitrijs2005/vault/internal/vault"
)

func main() {
	cfg := config.LoadConfig()
	if len(cfg.Command) == 0 {
		buildinfo.PrintBuildData(os.Stdout)
	}

	log, err := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, vault.Options{Log: log})
	if err != nil {
		log.Error(ctx, "failed to open vault", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
