// Package vault is the public face of the store: it owns the database
// handle, the process lock and the master key, and exposes every module,
// the index, export and audit operations through one value.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/config"
	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/filex"
	"github.com/dmitrijs2005/vault/internal/keys"
	"github.com/dmitrijs2005/vault/internal/logging"
	"github.com/dmitrijs2005/vault/internal/metrics"
	"github.com/dmitrijs2005/vault/internal/models"
	"github.com/dmitrijs2005/vault/internal/repositories/metadata"
	"github.com/dmitrijs2005/vault/internal/services"
	"github.com/dmitrijs2005/vault/internal/storage"
	"github.com/gofrs/flock"
)

// KeyName is the credential store entry holding the master key.
const KeyName = "master-key"

// Options supplies the collaborators Open cannot build from Config alone.
type Options struct {
	// Prompt asks for the passphrase on first run and when the credential
	// store lost the key. Nil disables both.
	Prompt keys.PassphraseFunc
	// Store overrides the OS credential store.
	Store   keys.KeyStore
	Log     logging.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Vault struct {
	cfg     *config.Config
	db      *sql.DB
	lock    *flock.Flock
	keys    *keys.Manager
	runner  *dbx.Runner
	locks   *services.Locks
	log     logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	records services.RecordService
	audit   services.AuditService
	index   services.IndexService
	export  services.ExportService
	budgets services.BudgetService

	closeOnce sync.Once
	closeErr  error
}

// Open locks the data directory, opens and migrates the database and loads
// the master key. A second Open on the same directory fails with
// common.ErrStoreLocked until the first vault is closed.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Vault, error) {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := filex.EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(cfg.DBPath() + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock store: %w", err)
	}
	if !ok {
		return nil, common.ErrStoreLocked
	}

	v, err := open(ctx, cfg, opts, lock)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return v, nil
}

func open(ctx context.Context, cfg *config.Config, opts Options, lock *flock.Flock) (*Vault, error) {
	store := opts.Store
	if store == nil {
		ks, err := keys.OpenKeyring(keys.KeyringConfig{
			ServiceName: cfg.KeyringService,
			Backend:     cfg.KeyringBackend,
			FileDir:     filepath.Join(cfg.DataDir, "keyring"),
		})
		if err != nil {
			opts.Metrics.KeyUnavailable()
			return nil, fmt.Errorf("%w: %w", common.ErrKeyUnavailable, err)
		}
		store = ks
	}

	db, err := storage.Open(ctx, cfg.DBPath(), int(cfg.BusyTimeout.Milliseconds()))
	if err != nil {
		return nil, err
	}

	mgr := keys.NewManager(store, metadata.NewSQLiteRepository(db), cfg.SaltPath(), KeyName, opts.Prompt, opts.Log)
	key, err := mgr.LoadOrCreate(ctx)
	if err != nil {
		_ = db.Close()
		opts.Metrics.KeyUnavailable()
		return nil, err
	}
	common.WipeByteArray(key)

	v := &Vault{
		cfg:     cfg,
		db:      db,
		lock:    lock,
		keys:    mgr,
		runner:  dbx.NewRunner(db, cfg.TxTimeout),
		locks:   services.NewLocks(),
		log:     opts.Log,
		metrics: opts.Metrics,
		now:     opts.Now,
	}

	d := services.Deps{
		Runner:   v.runner,
		Keys:     mgr,
		Locks:    v.locks,
		Log:      opts.Log,
		Metrics:  opts.Metrics,
		Now:      opts.Now,
		PageSize: cfg.PageSize,
	}
	v.audit = services.NewAuditService(d)
	v.records = services.NewRecordService(d, v.audit)
	v.index = services.NewIndexService(d, v.audit)
	v.export = services.NewExportService(d, v.records, v.audit, cfg.ExportPath())
	v.budgets = services.NewBudgetService(d, v.records, v.audit)

	v.log.Info(ctx, "vault opened", "dir", cfg.DataDir)
	return v, nil
}

// Close forgets the key, closes the database and releases the process lock.
// It is safe to call more than once.
func (v *Vault) Close() error {
	v.closeOnce.Do(func() {
		v.keys.Forget()
		v.closeErr = errors.Join(v.db.Close(), v.lock.Unlock())
	})
	return v.closeErr
}

func (v *Vault) Metrics() *metrics.Metrics {
	return v.metrics
}

// Ingest stores a record built from a collaborator payload and plain
// metadata. See models.FromIngest for the accepted shapes.
func (v *Vault) Ingest(ctx context.Context, m models.Module, payload []byte, md map[string]string) (int64, error) {
	rec, err := models.FromIngest(m, payload, md, v.now().UTC())
	if err != nil {
		return 0, err
	}
	return v.records.Insert(ctx, rec)
}

// Fetch returns the plain metadata and the decrypted payload of a record.
// Search terms, when present, are returned under models.MetaSearchTerms.
func (v *Vault) Fetch(ctx context.Context, m models.Module, id int64) (models.Summary, []byte, error) {
	rec, err := v.records.Get(ctx, m, id)
	if err != nil {
		return models.Summary{}, nil, err
	}

	s := models.Summarize(rec)
	if terms := rec.Envelope().SearchTerms; len(terms) > 0 {
		s.Plain[models.MetaSearchTerms] = strings.Join(terms, ",")
	}
	payload, err := models.Payload(rec)
	if err != nil {
		return models.Summary{}, nil, err
	}
	return s, payload, nil
}

// Get reads one record, decrypting the fields selected by opts.
func (v *Vault) Get(ctx context.Context, m models.Module, id int64, opts ...services.ReadOption) (models.Record, error) {
	return v.records.Get(ctx, m, id, opts...)
}

func (v *Vault) Insert(ctx context.Context, rec models.Record) (int64, error) {
	return v.records.Insert(ctx, rec)
}

func (v *Vault) Update(ctx context.Context, m models.Module, id int64, p models.Patch) error {
	return v.records.Update(ctx, m, id, p)
}

func (v *Vault) Delete(ctx context.Context, m models.Module, id int64) error {
	return v.records.Delete(ctx, m, id)
}

func (v *Vault) List(ctx context.Context, m models.Module, f models.ListFilter, opts ...services.ReadOption) iter.Seq2[models.Record, error] {
	return v.records.List(ctx, m, f, opts...)
}

// Purge deletes every record of m created before the cutoff.
func (v *Vault) Purge(ctx context.Context, m models.Module, before time.Time) (int, error) {
	return v.records.Purge(ctx, m, before)
}

func (v *Vault) SpendingByCategory(ctx context.Context, from, to time.Time) ([]models.CategorySpending, error) {
	return v.records.SpendingByCategory(ctx, from, to)
}

func (v *Vault) MoodStatistics(ctx context.Context, since time.Time) ([]models.MoodStat, error) {
	return v.records.MoodStatistics(ctx, since)
}

func (v *Vault) SetBudget(ctx context.Context, b models.Budget) (*models.Budget, error) {
	return v.budgets.Set(ctx, b)
}

func (v *Vault) Budgets(ctx context.Context) ([]models.Budget, error) {
	return v.budgets.List(ctx)
}

func (v *Vault) RemoveBudget(ctx context.Context, category string) error {
	return v.budgets.Remove(ctx, category)
}

// BudgetStatus reports every budget against the debits of the calendar
// month containing month.
func (v *Vault) BudgetStatus(ctx context.Context, month time.Time) ([]models.BudgetStatus, error) {
	return v.budgets.Status(ctx, month)
}

func (v *Vault) SearchAll(ctx context.Context, query string, f models.SearchFilter) (*models.SearchResults, error) {
	return v.index.Search(ctx, query, f)
}

func (v *Vault) AddTag(ctx context.Context, m models.Module, id int64, tag string) error {
	return v.index.AddTag(ctx, m, id, tag)
}

func (v *Vault) RemoveTag(ctx context.Context, m models.Module, id int64, tag string) error {
	return v.index.RemoveTag(ctx, m, id, tag)
}

func (v *Vault) SetFavorite(ctx context.Context, m models.Module, id int64, fav bool) error {
	return v.index.SetFavorite(ctx, m, id, fav)
}

func (v *Vault) GetFavorites(ctx context.Context, m models.Module) ([]int64, error) {
	return v.index.GetFavorites(ctx, m)
}

func (v *Vault) PopularTags(ctx context.Context, limit int) ([]models.TagCount, error) {
	return v.index.PopularTags(ctx, limit)
}

func (v *Vault) FindTags(ctx context.Context, pattern string) ([]models.TagCount, error) {
	return v.index.FindTags(ctx, pattern)
}

func (v *Vault) RebuildIndex(ctx context.Context) error {
	return v.index.Rebuild(ctx)
}

// Export writes target ("all" or a module name) to a new file under the
// export directory and returns its path.
func (v *Vault) Export(ctx context.Context, target string, format services.Format) (string, error) {
	return v.export.Export(ctx, target, format)
}

func (v *Vault) AuditQuery(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error) {
	return v.audit.Query(ctx, f)
}

func (v *Vault) AuditReport(ctx context.Context, since time.Time, recent int) (*models.AuditReport, error) {
	return v.audit.Report(ctx, since, recent)
}

func (v *Vault) PruneAudit(ctx context.Context, before time.Time) (int64, error) {
	return v.audit.Prune(ctx, before)
}

// RotateKey derives a new master key from newPassphrase and re-encrypts
// every sealed field in one transaction. All other operations wait until
// rotation finishes. On failure the store and the active key are unchanged.
func (v *Vault) RotateKey(ctx context.Context, newPassphrase []byte) error {
	if len(newPassphrase) == 0 {
		return fmt.Errorf("%w: empty passphrase", common.ErrValidation)
	}

	unlock := v.locks.Exclusive()
	defer unlock()

	var total int
	err := v.keys.Rotate(ctx, newPassphrase, func(ctx context.Context, oldKey, newKey, verifier []byte) error {
		return v.runner.DoTimeout(ctx, v.cfg.RotationTimeout, func(ctx context.Context, tx dbx.DBTX) error {
			n, err := v.records.Reseal(ctx, tx, oldKey, newKey)
			if err != nil {
				return err
			}

			meta := metadata.NewSQLiteRepository(tx)
			if err := meta.Set(ctx, metadata.KeyVerifier, verifier); err != nil {
				return err
			}
			now := models.FormatTime(v.now().UTC())
			if err := meta.Set(ctx, metadata.KeyRotatedAt, []byte(now)); err != nil {
				return err
			}

			total = n
			return v.audit.Append(ctx, tx, &models.AuditEntry{
				Module: models.ModuleSystem,
				Action: models.ActionUpdate,
				Details: map[string]string{
					"operation": "key_rotation",
					"records":   strconv.Itoa(n),
				},
			})
		})
	})
	if err != nil {
		v.log.Error(ctx, "key rotation failed", "error", err)
		return err
	}

	v.metrics.Operation(string(models.ModuleSystem), string(models.ActionUpdate))
	v.metrics.AuditAppended(string(models.ActionUpdate))
	v.log.Info(ctx, "key rotation committed", "records", total)
	return nil
}
