package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/repositories/auditlog"
)

// DefaultRecentEvents is the number of events included in a report when the
// caller does not choose.
const DefaultRecentEvents = 10

// AuditService is the append-only access log.
//
// Contract:
//   - Append: writes inside the caller's transaction; an error must abort it.
//   - Query: entries by timestamp ascending, ties in insertion order.
//   - Report: totals by module and action since a point in time plus the
//     newest events.
//   - Prune: the only removal path; it logs itself before deleting.
type AuditService interface {
	Append(ctx context.Context, tx dbx.DBTX, e *models.AuditEntry) error
	Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error)
	Report(ctx context.Context, since time.Time, recent int) (*models.AuditReport, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type auditService struct {
	d Deps
}

func NewAuditService(d Deps) AuditService {
	return &auditService{d: d}
}

func (s *auditService) Append(ctx context.Context, tx dbx.DBTX, e *models.AuditEntry) error {
	if !e.Module.Valid() && e.Module != models.ModuleSystem {
		return fmt.Errorf("%w: audit module %q", common.ErrValidation, e.Module)
	}
	if _, err := models.ParseAction(string(e.Action)); err != nil {
		return err
	}

	e.EventID = uuid.NewString()
	e.Timestamp = s.d.now()
	return auditlog.NewSQLiteRepository(tx).Insert(ctx, e)
}

func (s *auditService) Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error) {
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", common.ErrValidation)
	}
	unlock := s.d.Locks.Read()
	defer unlock()

	return auditlog.NewSQLiteRepository(s.d.Runner.DB()).Query(ctx, f)
}

func (s *auditService) Report(ctx context.Context, since time.Time, recent int) (*models.AuditReport, error) {
	if recent <= 0 {
		recent = DefaultRecentEvents
	}
	unlock := s.d.Locks.Read()
	defer unlock()

	repo := auditlog.NewSQLiteRepository(s.d.Runner.DB())
	byModule, byAction, err := repo.Counts(ctx, since)
	if err != nil {
		return nil, err
	}
	events, err := repo.Recent(ctx, recent)
	if err != nil {
		return nil, err
	}

	rep := &models.AuditReport{Since: since, ByModule: byModule, ByAction: byAction, Recent: events}
	for _, n := range byModule {
		rep.Total += n
	}
	return rep, nil
}

// Prune deletes entries older than before. The deletion is itself recorded
// as an export-class system entry, in the same transaction, so it survives
// the cutoff.
func (s *auditService) Prune(ctx context.Context, before time.Time) (int64, error) {
	if before.After(s.d.now()) {
		return 0, fmt.Errorf("%w: prune cutoff is in the future", common.ErrValidation)
	}

	unlock := s.d.Locks.Write(models.ModuleSystem)
	defer unlock()

	var deleted int64
	err := s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := auditlog.NewSQLiteRepository(tx)

		n, err := repo.CountBefore(ctx, before)
		if err != nil {
			return err
		}

		err = s.Append(ctx, tx, &models.AuditEntry{
			Module: models.ModuleSystem,
			Action: models.ActionExport,
			Details: map[string]string{
				"operation": "audit_prune",
				"cutoff":    models.FormatTime(before),
				"count":     strconv.Itoa(n),
			},
		})
		if err != nil {
			return err
		}

		deleted, err = repo.DeleteBefore(ctx, before)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.d.committed(models.ModuleSystem, models.ActionExport)
	s.d.Log.Info(ctx, "audit log pruned", "cutoff", models.FormatTime(before), "deleted", deleted)
	return deleted, nil
}
