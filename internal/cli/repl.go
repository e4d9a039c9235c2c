package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. *App satisfies it;
// tests can provide a lightweight stub.
type execIface interface {
	Usage() []string
	Known(cmd string) bool
	Exec(ctx context.Context, cmd string, args []string) error
}

// runREPL reads one command per line from r and dispatches it to a until
// EOF, "exit" or "quit". Errors from commands are printed and the loop goes
// on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("vault (%s)> ", statusFn()))
		line, err := readLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				printlnFn(color.RedString("error: %v", err))
			}
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := strings.ToLower(parts[0])

		switch {
		case cmd == "help":
			printlnFn("Available commands:")
			for _, u := range a.Usage() {
				printlnFn("  " + u)
			}

		case cmd == "exit" || cmd == "quit":
			printlnFn("Bye!")
			return

		case a.Known(cmd):
			if err := a.Exec(ctx, cmd, parts[1:]); err != nil {
				printlnFn(color.RedString("error: %v", err))
			}

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
