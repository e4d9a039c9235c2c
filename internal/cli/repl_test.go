package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	calls []string
	fail  map[string]error
}

func (f *fakeExec) Usage() []string { return []string{"list <module>"} }

func (f *fakeExec) Known(cmd string) bool {
	return cmd == "list" || cmd == "show" || cmd == "search"
}

func (f *fakeExec) Exec(_ context.Context, cmd string, args []string) error {
	f.calls = append(f.calls, strings.TrimSpace(cmd+" "+strings.Join(args, " ")))
	return f.fail[cmd]
}

func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, fmt.Sprint(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesKnownCommands(t *testing.T) {
	out := capturePrintln(t)

	input := strings.Join([]string{
		"help",
		"",
		"LIST journal",
		"show journal 3",
		"foobar",
		"search coffee module=finance",
		"exit",
		"list finance",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, rdr(input))

	assert.Equal(t, []string{"list journal", "show journal 3", "search coffee module=finance"}, exec.calls)
	assert.Contains(t, *out, "Unknown command:foobar")
	assert.Contains(t, *out, "  list <module>")
	assert.Contains(t, *out, "Bye!")
}

func TestRunREPL_ErrorsDoNotStopTheLoop(t *testing.T) {
	out := capturePrintln(t)

	exec := &fakeExec{fail: map[string]error{"show": errors.New("record not found")}}
	runREPL(context.Background(), exec, func() string { return "s" }, rdr("show journal 9\nlist journal\n"))

	assert.Equal(t, []string{"show journal 9", "list journal"}, exec.calls)

	joined := strings.Join(*out, "\n")
	assert.Contains(t, joined, "error: record not found")
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	capturePrintln(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, rdr("list journal"))

	assert.Equal(t, []string{"list journal"}, exec.calls)
}
