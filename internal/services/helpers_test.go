package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/cryptox"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/logging"
	"github.com/dmitrijs2005/vault/internal/metrics"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/storage"
)

// staticKeys serves a fixed key until broken.
type staticKeys struct {
	mu     sync.Mutex
	key    []byte
	broken bool
}

func (k *staticKeys) Current() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.broken {
		return nil, common.ErrKeyUnavailable
	}
	return append([]byte(nil), k.key...), nil
}

func (k *staticKeys) set(key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.key = key
}

func (k *staticKeys) fail() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.broken = true
}

// stepClock advances one second per call so audit order is deterministic.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var epoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type env struct {
	db      *sql.DB
	keys    *staticKeys
	clock   *stepClock
	deps    Deps
	audit   AuditService
	records RecordService
	index   IndexService
	budgets BudgetService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "vault.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		db:    db,
		keys:  &staticKeys{key: common.GenerateRandByteArray(cryptox.KeySize)},
		clock: &stepClock{now: epoch},
	}
	e.deps = Deps{
		Runner:   dbx.NewRunner(db, 5*time.Second),
		Keys:     e.keys,
		Locks:    NewLocks(),
		Log:      logging.Nop(),
		Metrics:  metrics.New(),
		Now:      e.clock.Now,
		PageSize: 2,
	}
	e.audit = NewAuditService(e.deps)
	e.records = NewRecordService(e.deps, e.audit)
	e.index = NewIndexService(e.deps, e.audit)
	e.budgets = NewBudgetService(e.deps, e.records, e.audit)
	return e
}

func (e *env) count(t *testing.T, q string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(q, args...).Scan(&n))
	return n
}

func (e *env) auditFor(t *testing.T, m models.Module, id int64, action models.ActionType) int {
	t.Helper()
	return e.count(t, `SELECT COUNT(*) FROM audit_log WHERE module = ? AND record_id = ? AND action_type = ?`,
		string(m), id, string(action))
}

func journal(content string, tags ...string) *models.JournalEntry {
	return &models.JournalEntry{
		Meta:         models.Meta{Module: models.ModuleJournal, Tags: tags},
		Content:      content,
		MoodCategory: "calm",
		EntryDate:    epoch,
	}
}

func starbucks() *models.Transaction {
	return &models.Transaction{
		Meta:          models.Meta{Module: models.ModuleFinance},
		Amount:        decimal.RequireFromString("1250.00"),
		Type:          models.TransactionDebit,
		Category:      "Food & Dining",
		OccurredAt:    epoch,
		Merchant:      "STARBUCKS",
		AccountNumber: "XX1234",
	}
}

func document(name string) *models.DocumentMeta {
	return &models.DocumentMeta{
		Meta:     models.Meta{Module: models.ModuleDocuments},
		Filename: name,
		FileType: "pdf",
		FilePath: "/home/me/" + name,
		Summary:  "lease agreement",
	}
}
