package services

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/repositories/records"
	"github.com/dmitrijs2005/vault/internal/repositories/tags"
)

// ReadOption narrows which sensitive fields a read decrypts.
type ReadOption func(*readOptions)

type readOptions struct {
	fields []models.Field
	set    bool
}

// WithFields decrypts only the named fields.
func WithFields(fields ...models.Field) ReadOption {
	return func(o *readOptions) {
		o.fields = fields
		o.set = true
	}
}

// MetadataOnly decrypts nothing. Such reads need no key; they are audited
// with an empty field list.
func MetadataOnly() ReadOption {
	return WithFields()
}

func resolveFields(m models.Module, opts []ReadOption) ([]models.Field, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	all := models.SensitiveFields(m)
	if !o.set {
		return all, nil
	}
	for _, f := range o.fields {
		if !models.ContainsField(all, f) {
			return nil, fmt.Errorf("%w: %s has no field %q", common.ErrValidation, m, f)
		}
	}
	return o.fields, nil
}

// RecordService is the storage engine for every module.
//
// Contract:
//   - Insert/Update/Delete: one transaction covering encryption, the row,
//     the tag index, blind tokens and the audit entry.
//   - Get/List: decrypt only the requested fields; every read appends a
//     read entry naming the decrypted fields.
//   - List: lazy and finite; each range re-issues its queries.
//   - Reseal: re-encrypts the whole store inside the caller's transaction.
type RecordService interface {
	Insert(ctx context.Context, rec models.Record) (int64, error)
	Get(ctx context.Context, m models.Module, id int64, opts ...ReadOption) (models.Record, error)
	Update(ctx context.Context, m models.Module, id int64, patch models.Patch) error
	Delete(ctx context.Context, m models.Module, id int64) error
	List(ctx context.Context, m models.Module, f models.ListFilter, opts ...ReadOption) iter.Seq2[models.Record, error]
	Purge(ctx context.Context, m models.Module, before time.Time) (int, error)
	SpendingByCategory(ctx context.Context, from, to time.Time) ([]models.CategorySpending, error)
	MoodStatistics(ctx context.Context, since time.Time) ([]models.MoodStat, error)
	Reseal(ctx context.Context, tx dbx.DBTX, oldKey, newKey []byte) (int, error)
}

type recordService struct {
	d     Deps
	audit AuditService
}

func NewRecordService(d Deps, audit AuditService) RecordService {
	return &recordService{d: d, audit: audit}
}

func checkModule(m models.Module) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unknown module %q", common.ErrValidation, m)
	}
	return nil
}

func (s *recordService) Insert(ctx context.Context, rec models.Record) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("%w: nil record", common.ErrValidation)
	}
	env := rec.Envelope()
	if err := checkModule(env.Module); err != nil {
		return 0, err
	}
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	normalized, err := models.NormalizeTags(env.Tags)
	if err != nil {
		return 0, err
	}
	env.Tags = normalized
	env.SearchTerms = models.CleanTerms(env.SearchTerms)

	unlock := s.d.Locks.Write(env.Module)
	defer unlock()

	key, err := s.d.key()
	if err != nil {
		return 0, err
	}

	fields := models.SensitiveFields(env.Module)
	sealed, err := sealFields(rec, fields, key)
	if err != nil {
		return 0, err
	}
	toks, err := blindTokens(rec, key)
	if err != nil {
		return 0, err
	}

	env.CreatedAt = s.d.now()

	var id int64
	err = s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		id, err = records.NewSQLiteRepository(tx).Insert(ctx, rec, sealed, toks)
		if err != nil {
			return err
		}
		if err := tags.NewSQLiteRepository(tx).Replace(ctx, env.Module, id, env.Tags); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module:   env.Module,
			Action:   models.ActionCreate,
			RecordID: &id,
			Details:  map[string]string{"fields": fieldNames(present(sealed, fields))},
		})
	})
	if err != nil {
		return 0, err
	}

	env.ID = id
	s.d.committed(env.Module, models.ActionCreate)
	s.d.Log.Debug(ctx, "record inserted", "module", env.Module, "id", id)
	return id, nil
}

// present lists the fields that hold a value, in declaration order.
func present(sealed records.Sealed, fields []models.Field) []models.Field {
	var out []models.Field
	for _, f := range fields {
		if sealed[f] != nil {
			out = append(out, f)
		}
	}
	return out
}

func (s *recordService) Get(ctx context.Context, m models.Module, id int64, opts ...ReadOption) (models.Record, error) {
	if err := checkModule(m); err != nil {
		return nil, err
	}
	fields, err := resolveFields(m, opts)
	if err != nil {
		return nil, err
	}

	unlock := s.d.Locks.Read()
	defer unlock()

	var key []byte
	if len(fields) > 0 {
		if key, err = s.d.key(); err != nil {
			return nil, err
		}
	}

	var rec models.Record
	err = s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		row, err := records.NewSQLiteRepository(tx).Get(ctx, m, id)
		if err != nil {
			return err
		}
		if err := openFields(row, fields, key); err != nil {
			s.d.Metrics.DecryptFailed(string(m))
			return err
		}
		rec = row.Record
		return s.audit.Append(ctx, tx, readEntry(m, id, fields))
	})
	if err != nil {
		return nil, err
	}

	s.d.committed(m, models.ActionRead)
	return rec, nil
}

func readEntry(m models.Module, id int64, fields []models.Field) *models.AuditEntry {
	return &models.AuditEntry{
		Module:   m,
		Action:   models.ActionRead,
		RecordID: &id,
		Details:  map[string]string{"fields": fieldNames(fields)},
	}
}

// Update applies patch and re-encrypts the sensitive fields it changes.
// Token fields are decrypted first so the blind index can be recomputed.
func (s *recordService) Update(ctx context.Context, m models.Module, id int64, patch models.Patch) error {
	if err := checkModule(m); err != nil {
		return err
	}
	if patch == nil || patch.Module() != m {
		return fmt.Errorf("%w: patch does not match module %s", common.ErrValidation, m)
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	unlock := s.d.Locks.Write(m)
	defer unlock()

	key, err := s.d.key()
	if err != nil {
		return err
	}

	var changed []models.Field
	err = s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		row, err := repo.Get(ctx, m, id)
		if err != nil {
			return err
		}
		if err := openFields(row, models.TokenFields(m), key); err != nil {
			s.d.Metrics.DecryptFailed(string(m))
			return err
		}

		if changed, err = patch.Apply(row.Record); err != nil {
			return err
		}
		sealed, err := sealFields(row.Record, changed, key)
		if err != nil {
			return err
		}

		var toks []string
		if slices.ContainsFunc(changed, func(f models.Field) bool {
			return models.ContainsField(models.TokenFields(m), f)
		}) {
			if toks, err = blindTokens(row.Record, key); err != nil {
				return err
			}
		}

		if err := repo.Update(ctx, row.Record, sealed, toks); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, &models.AuditEntry{
			Module:   m,
			Action:   models.ActionUpdate,
			RecordID: &id,
			Details:  map[string]string{"fields": fieldNames(changed)},
		})
	})
	if err != nil {
		return err
	}

	s.d.committed(m, models.ActionUpdate)
	return nil
}

// Delete removes the row together with its tag index rows. Favorite state
// and blind tokens live on the row and go with it.
func (s *recordService) Delete(ctx context.Context, m models.Module, id int64) error {
	if err := checkModule(m); err != nil {
		return err
	}

	unlock := s.d.Locks.Write(m)
	defer unlock()

	err := s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.deleteOne(ctx, tx, m, id, nil)
	})
	if err != nil {
		return err
	}

	s.d.committed(m, models.ActionDelete)
	return nil
}

func (s *recordService) deleteOne(ctx context.Context, tx dbx.DBTX, m models.Module, id int64, details map[string]string) error {
	if err := records.NewSQLiteRepository(tx).Delete(ctx, m, id); err != nil {
		return err
	}
	if err := tags.NewSQLiteRepository(tx).DeleteRecord(ctx, m, id); err != nil {
		return err
	}
	return s.audit.Append(ctx, tx, &models.AuditEntry{
		Module:   m,
		Action:   models.ActionDelete,
		RecordID: &id,
		Details:  details,
	})
}

// List yields matching records, most recent first. Pages are fetched under
// the shared lock, which is released before records are yielded. Records
// that fail authentication are yielded as errors without stopping the
// sequence; a missing key stops it.
func (s *recordService) List(ctx context.Context, m models.Module, f models.ListFilter, opts ...ReadOption) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		if err := checkModule(m); err != nil {
			yield(nil, err)
			return
		}
		fields, err := resolveFields(m, opts)
		if err != nil {
			yield(nil, err)
			return
		}
		if f.Tags, err = models.NormalizeTags(f.Tags); err != nil {
			yield(nil, err)
			return
		}

		var cursor *records.Cursor
		for {
			page, err := s.page(ctx, m, f, fields, cursor)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, r := range page.items {
				if !yield(r.rec, r.err) {
					return
				}
			}
			if page.next == nil {
				return
			}
			cursor = page.next
		}
	}
}

type listItem struct {
	rec models.Record
	err error
}

type listPage struct {
	items []listItem
	next  *records.Cursor
}

func (s *recordService) page(ctx context.Context, m models.Module, f models.ListFilter, fields []models.Field, after *records.Cursor) (*listPage, error) {
	unlock := s.d.Locks.Read()
	defer unlock()

	limit := s.d.pageSize()
	rows, err := records.NewSQLiteRepository(s.d.Runner.DB()).Page(ctx, m, f, after, limit)
	if err != nil {
		return nil, err
	}

	out := &listPage{items: make([]listItem, 0, len(rows))}
	if len(rows) == limit {
		last := rows[len(rows)-1].Record.Envelope()
		out.next = &records.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	if len(rows) == 0 {
		return out, nil
	}

	var key []byte
	if len(fields) > 0 {
		if key, err = s.d.key(); err != nil {
			return nil, err
		}
	}

	var opened []int64
	for i := range rows {
		if err := openFields(&rows[i], fields, key); err != nil {
			s.d.Metrics.DecryptFailed(string(m))
			out.items = append(out.items, listItem{err: err})
			continue
		}
		out.items = append(out.items, listItem{rec: rows[i].Record})
		opened = append(opened, rows[i].Record.Envelope().ID)
	}
	if len(opened) == 0 {
		return out, nil
	}

	err = s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, id := range opened {
			if err := s.audit.Append(ctx, tx, readEntry(m, id, fields)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range opened {
		s.d.committed(m, models.ActionRead)
	}
	return out, nil
}

// Purge deletes every record of m created before the cutoff, each with its
// own delete entry, in one transaction.
func (s *recordService) Purge(ctx context.Context, m models.Module, before time.Time) (int, error) {
	if err := checkModule(m); err != nil {
		return 0, err
	}
	if before.IsZero() {
		return 0, fmt.Errorf("%w: purge needs a cutoff", common.ErrValidation)
	}

	unlock := s.d.Locks.Write(m)
	defer unlock()

	var ids []int64
	err := s.d.Runner.Do(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if ids, err = records.NewSQLiteRepository(tx).IDsBefore(ctx, m, before); err != nil {
			return err
		}
		details := map[string]string{"reason": "purge", "cutoff": models.FormatTime(before)}
		for _, id := range ids {
			if err := s.deleteOne(ctx, tx, m, id, details); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for range ids {
		s.d.committed(m, models.ActionDelete)
	}
	s.d.Log.Info(ctx, "records purged", "module", m, "count", len(ids))
	return len(ids), nil
}

func (s *recordService) SpendingByCategory(ctx context.Context, from, to time.Time) ([]models.CategorySpending, error) {
	unlock := s.d.Locks.Read()
	defer unlock()
	return records.NewSQLiteRepository(s.d.Runner.DB()).SpendingByCategory(ctx, from, to)
}

func (s *recordService) MoodStatistics(ctx context.Context, since time.Time) ([]models.MoodStat, error) {
	unlock := s.d.Locks.Read()
	defer unlock()
	return records.NewSQLiteRepository(s.d.Runner.DB()).MoodStatistics(ctx, since)
}

// Reseal re-encrypts every sealed field and recomputes every blind token
// from oldKey to newKey, inside tx. It takes no locks; the caller holds the
// store exclusively. Any authentication failure aborts the whole run.
func (s *recordService) Reseal(ctx context.Context, tx dbx.DBTX, oldKey, newKey []byte) (int, error) {
	repo := records.NewSQLiteRepository(tx)
	total := 0

	for _, m := range models.Modules() {
		fields := models.SensitiveFields(m)
		var cursor *records.Cursor
		for {
			rows, err := repo.Page(ctx, m, models.ListFilter{}, cursor, s.d.pageSize())
			if err != nil {
				return 0, err
			}
			for i := range rows {
				row := &rows[i]
				if err := openFields(row, fields, oldKey); err != nil {
					return 0, fmt.Errorf("rotation aborted: %w", err)
				}
				sealed, err := sealFields(row.Record, fields, newKey)
				if err != nil {
					return 0, err
				}
				toks, err := blindTokens(row.Record, newKey)
				if err != nil {
					return 0, err
				}
				env := row.Record.Envelope()
				if err := repo.UpdateSealed(ctx, m, env.ID, sealed, toks); err != nil {
					return 0, err
				}
				total++
			}
			if len(rows) < s.d.pageSize() {
				break
			}
			last := rows[len(rows)-1].Record.Envelope()
			cursor = &records.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	}

	s.d.Log.Info(ctx, "records resealed", "count", total)
	return total, nil
}
