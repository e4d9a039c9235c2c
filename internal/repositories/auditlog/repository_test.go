package auditlog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "a.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var base = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func entry(offset time.Duration, m models.Module, a models.ActionType, id *int64) *models.AuditEntry {
	return &models.AuditEntry{
		EventID:   uuid.NewString(),
		Timestamp: base.Add(offset),
		Module:    m,
		Action:    a,
		RecordID:  id,
		Details:   map[string]string{"k": "v"},
	}
}

func TestInsertAndQuery_OrderAndFilters(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	one := int64(1)
	entries := []*models.AuditEntry{
		entry(2*time.Hour, models.ModuleFinance, models.ActionRead, &one),
		entry(0, models.ModuleJournal, models.ActionCreate, &one),
		entry(0, models.ModuleJournal, models.ActionRead, &one),
		entry(time.Hour, models.ModuleSystem, models.ActionSearch, nil),
	}
	for _, e := range entries {
		require.NoError(t, r.Insert(ctx, e))
		require.NotZero(t, e.ID)
	}

	all, err := r.Query(ctx, models.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, models.ActionCreate, all[0].Action, "same timestamp: insertion order")
	require.Equal(t, models.ActionRead, all[1].Action)
	require.Equal(t, models.ActionSearch, all[2].Action)
	require.Nil(t, all[2].RecordID)
	require.Equal(t, models.ModuleFinance, all[3].Module)
	require.Equal(t, map[string]string{"k": "v"}, all[3].Details)

	reads, err := r.Query(ctx, models.AuditFilter{Action: models.ActionRead, Module: models.ModuleJournal})
	require.NoError(t, err)
	require.Len(t, reads, 1)

	window, err := r.Query(ctx, models.AuditFilter{From: base.Add(time.Minute), To: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	require.Equal(t, models.ActionSearch, window[0].Action)

	limited, err := r.Query(ctx, models.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestCountsRecentAndPrune(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, entry(0, models.ModuleJournal, models.ActionCreate, nil)))
	require.NoError(t, r.Insert(ctx, entry(time.Hour, models.ModuleJournal, models.ActionRead, nil)))
	require.NoError(t, r.Insert(ctx, entry(2*time.Hour, models.ModuleFinance, models.ActionRead, nil)))

	byModule, byAction, err := r.Counts(ctx, base)
	require.NoError(t, err)
	require.Equal(t, map[models.Module]int{models.ModuleJournal: 2, models.ModuleFinance: 1}, byModule)
	require.Equal(t, map[models.ActionType]int{models.ActionCreate: 1, models.ActionRead: 2}, byAction)

	recent, err := r.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, models.ModuleFinance, recent[0].Module)

	n, err := r.CountBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	deleted, err := r.DeleteBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	left, err := r.Query(ctx, models.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
}
