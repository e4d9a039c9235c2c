package cli

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/config"
	"github.com/dmitrijs2005/vault/internal/keys"
	"github.com/dmitrijs2005/vault/internal/vault"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.TxTimeout = 5 * time.Second
	cfg.RotationTimeout = 30 * time.Second
	cfg.BusyTimeout = time.Second

	a, err := NewApp(context.Background(), cfg, vault.Options{
		Store:  keys.NewKeyringStore(keyring.NewArrayKeyring(nil)),
		Prompt: func(context.Context, bool) ([]byte, error) { return []byte("pw"), nil },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	var out bytes.Buffer
	a.out = &out
	return a, &out
}

// run feeds input to the app and executes one command line.
func run(t *testing.T, a *App, out *bytes.Buffer, input, line string) (string, error) {
	t.Helper()
	out.Reset()
	a.reader = rdr(input)
	parts := strings.Fields(line)
	err := a.Exec(context.Background(), parts[0], parts[1:])
	return out.String(), err
}

func TestApp_JournalLifecycle(t *testing.T) {
	a, out := newTestApp(t)

	got, err := run(t, a, out, "Walked to the lake.\nSaw herons.\n\n", "ingest journal tags=outdoors mood_category=calm")
	require.NoError(t, err)
	assert.Contains(t, got, "stored journal #1")

	got, err = run(t, a, out, "", "show journal 1")
	require.NoError(t, err)
	assert.Contains(t, got, "journal #1")
	assert.Contains(t, got, "[outdoors]")
	assert.Contains(t, got, "mood_category: calm")
	assert.Contains(t, got, "Walked to the lake.\nSaw herons.")

	_, err = run(t, a, out, "", "update journal 1 content=Rainy.")
	require.NoError(t, err)
	got, err = run(t, a, out, "", "show journal 1")
	require.NoError(t, err)
	assert.Contains(t, got, "Rainy.")

	_, err = run(t, a, out, "", "fav journal 1")
	require.NoError(t, err)
	got, err = run(t, a, out, "", "favs journal")
	require.NoError(t, err)
	assert.Contains(t, got, "journal #1\n1 favorite(s)")

	got, err = run(t, a, out, "", "list journal fav tag=outdoors")
	require.NoError(t, err)
	assert.Contains(t, got, "1 record(s)")

	_, err = run(t, a, out, "", "delete journal 1")
	require.NoError(t, err)
	_, err = run(t, a, out, "", "show journal 1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestApp_FinanceSearchAndTags(t *testing.T) {
	a, out := newTestApp(t)

	_, err := run(t, a, out, "STARBUCKS\n\nXX1234\n", "ingest finance amount=12.50 category=Food tags=coffee")
	require.NoError(t, err)

	got, err := run(t, a, out, "", "show finance 1")
	require.NoError(t, err)
	assert.Contains(t, got, `"merchant": "STARBUCKS"`)

	got, err = run(t, a, out, "", "search starbucks module=finance")
	require.NoError(t, err)
	assert.Contains(t, got, "finance #1")
	assert.Contains(t, got, "1 match(es)")

	_, err = run(t, a, out, "", "tag finance 1 Morning")
	require.NoError(t, err)
	got, err = run(t, a, out, "", "tags m*")
	require.NoError(t, err)
	assert.Contains(t, got, "morning")
	assert.NotContains(t, got, "coffee")

	got, err = run(t, a, out, "", "popular 5")
	require.NoError(t, err)
	assert.Contains(t, got, "coffee")

	got, err = run(t, a, out, "", "spending 2000-01-01")
	require.NoError(t, err)
	assert.Contains(t, got, "12.50")
}

func TestApp_Budgets(t *testing.T) {
	a, out := newTestApp(t)

	_, err := run(t, a, out, "FRESHMART\n\n\n", "ingest finance amount=90 category=Groceries occurred_at=2025-03-04")
	require.NoError(t, err)

	got, err := run(t, a, out, "", "budget Eating Out 150 threshold=0.8")
	require.NoError(t, err)
	assert.Contains(t, got, "budget set for Eating Out: 150.00 per month, alert at 80%")
	_, err = run(t, a, out, "", "budget Groceries 100")
	require.NoError(t, err)

	got, err = run(t, a, out, "", "budgets 2025-03-15")
	require.NoError(t, err)
	assert.Contains(t, got, "Budgets for March 2025")
	assert.Regexp(t, `Groceries\s+90\.00 / 100\.00\s+90\.0%\s+alert`, got)
	assert.Regexp(t, `Eating Out\s+0\.00 / 150\.00\s+0\.0%\s+ok`, got)

	got, err = run(t, a, out, "", "unbudget Eating Out")
	require.NoError(t, err)
	assert.Contains(t, got, "budget for Eating Out removed")

	_, err = run(t, a, out, "", "unbudget Eating Out")
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = run(t, a, out, "", "budget Groceries lots")
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = run(t, a, out, "", "budget 100")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestApp_AuditExportAndStats(t *testing.T) {
	a, out := newTestApp(t)

	_, err := run(t, a, out, "entry\n\n", "ingest journal")
	require.NoError(t, err)

	got, err := run(t, a, out, "", "export all format=csv")
	require.NoError(t, err)
	assert.Contains(t, got, "exported to ")

	got, err = run(t, a, out, "", "audit action=create")
	require.NoError(t, err)
	assert.Contains(t, got, "journal")
	assert.Contains(t, got, "1 entr(ies)")

	got, err = run(t, a, out, "", "report")
	require.NoError(t, err)
	assert.Contains(t, got, "Audit since")

	got, err = run(t, a, out, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, got, `vault_operations_total{action="create",module="journal"} 1`)
}

func TestApp_Rotate(t *testing.T) {
	a, out := newTestApp(t)
	_, err := run(t, a, out, "before rotation\n\n", "ingest journal")
	require.NoError(t, err)

	old := readPassword
	t.Cleanup(func() { readPassword = old })

	readPassword = func(int) ([]byte, error) { return []byte("new-pass"), nil }
	got, err := run(t, a, out, "", "rotate")
	require.NoError(t, err)
	assert.Contains(t, got, "master key rotated")

	got, err = run(t, a, out, "", "show journal 1")
	require.NoError(t, err)
	assert.Contains(t, got, "before rotation")

	calls := 0
	readPassword = func(int) ([]byte, error) {
		calls++
		return []byte("x" + strings.Repeat("y", calls)), nil
	}
	_, err = run(t, a, out, "", "rotate")
	require.ErrorIs(t, err, common.ErrValidation, "mismatched confirmation")
}

func TestApp_BadInput(t *testing.T) {
	a, out := newTestApp(t)

	cases := []string{
		"ingest",
		"ingest notes",
		"show journal",
		"list journal color=red",
		"export all format=pdf",
		"purge journal someday",
		"audit action=peek",
		"popular many",
	}
	for _, line := range cases {
		_, err := run(t, a, out, "", line)
		require.Error(t, err, line)
	}

	err := a.Exec(context.Background(), "nope", nil)
	require.Error(t, err)
}
