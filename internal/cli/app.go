package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/config"
	"github.com/dmitrijs2005/vault/internal/vault"
	"github.com/fatih/color"
)

type App struct {
	config *config.Config
	vault  *vault.Vault
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the vault described by c. When opts.Prompt is nil the
// passphrase is read from the terminal.
func NewApp(ctx context.Context, c *config.Config, opts vault.Options) (*App, error) {
	a := &App{config: c, reader: bufio.NewReader(os.Stdin), out: os.Stdout}
	if opts.Prompt == nil {
		opts.Prompt = a.askPassphrase
	}

	v, err := vault.Open(ctx, c, opts)
	if err != nil {
		return nil, err
	}
	a.vault = v
	return a, nil
}

func (a *App) Close() error {
	return a.vault.Close()
}

// Run executes the command left on the command line, or starts the REPL
// when there is none.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if len(a.config.Command) > 0 {
		return a.Exec(ctx, a.config.Command[0], a.config.Command[1:])
	}

	fmt.Fprintln(a.out, "Welcome to vault (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader)
	return nil
}

func (a *App) status() string {
	return filepath.Base(a.config.DataDir)
}

// askPassphrase reads the master passphrase; confirm asks twice.
func (a *App) askPassphrase(_ context.Context, confirm bool) ([]byte, error) {
	pass, err := GetPassword(a.out, "Passphrase: ")
	if err != nil {
		return nil, err
	}
	if len(pass) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", common.ErrValidation)
	}
	if !confirm {
		return pass, nil
	}

	again, err := GetPassword(a.out, "Repeat passphrase: ")
	if err != nil {
		common.WipeByteArray(pass)
		return nil, err
	}
	defer common.WipeByteArray(again)
	if !bytes.Equal(pass, again) {
		common.WipeByteArray(pass)
		return nil, fmt.Errorf("%w: passphrases do not match", common.ErrValidation)
	}
	return pass, nil
}

func (a *App) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(a.out, format+"\n", args...)
}

func (a *App) header(format string, args ...any) {
	color.New(color.Bold).Fprintf(a.out, format+"\n", args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
