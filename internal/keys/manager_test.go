package keys

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/cryptox"
	"github.com/dmitrijs2005/vault/internal/logging"
	"github.com/dmitrijs2005/vault/internal/repositories/metadata"

	_ "modernc.org/sqlite"
)

const testName = "vault-test"

func setupMeta(t *testing.T) *metadata.SQLiteRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)
	return metadata.NewSQLiteRepository(db)
}

func fixedPassphrase(p string) (PassphraseFunc, *int) {
	calls := 0
	return func(context.Context, bool) ([]byte, error) {
		calls++
		return []byte(p), nil
	}, &calls
}

type failingStore struct {
	err error
}

func (f failingStore) Get(string) ([]byte, error) { return nil, f.err }
func (f failingStore) Set(string, []byte) error   { return f.err }
func (f failingStore) Remove(string) error        { return f.err }

func newTestManager(t *testing.T, store KeyStore, meta metadata.Repository, prompt PassphraseFunc) (*Manager, string) {
	t.Helper()
	salt := filepath.Join(t.TempDir(), "vault.salt")
	return NewManager(store, meta, salt, testName, prompt, logging.Nop()), salt
}

func TestLoadOrCreate_FirstRunThenReload(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, calls := fixedPassphrase("correct horse")

	m, saltPath := newTestManager(t, store, meta, prompt)
	key, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)
	require.Len(t, key, cryptox.KeySize)
	require.Equal(t, 1, *calls)

	stored, err := store.Get(testName)
	require.NoError(t, err)
	require.Equal(t, key, stored)

	v, err := meta.Get(ctx, metadata.KeyVerifier)
	require.NoError(t, err)
	require.Equal(t, cryptox.MakeVerifier(key), v)

	again := NewManager(store, meta, saltPath, testName, prompt, logging.Nop())
	key2, err := again.LoadOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, key, key2)
	require.Equal(t, 1, *calls, "reload must not prompt")
}

func TestLoadOrCreate_StoreUnavailableOnFirstRun(t *testing.T) {
	ctx := context.Background()
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, _ := newTestManager(t, failingStore{err: errors.New("dbus down")}, meta, prompt)
	_, err := m.LoadOrCreate(ctx)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)

	v, err := meta.Get(ctx, metadata.KeyVerifier)
	require.NoError(t, err)
	require.Nil(t, v, "verifier must not be written without a stored key")
}

func TestLoadOrCreate_BackendErrorFailsClosed(t *testing.T) {
	ctx := context.Background()
	ring := keyring.NewArrayKeyring(nil)
	meta := setupMeta(t)
	prompt, calls := fixedPassphrase("pw")

	m, saltPath := newTestManager(t, NewKeyringStore(ring), meta, prompt)
	_, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)

	broken := NewManager(failingStore{err: errors.New("locked")}, meta, saltPath, testName, prompt, logging.Nop())
	_, err = broken.LoadOrCreate(ctx)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	require.Equal(t, 1, *calls, "backend errors must not fall back to prompting")

	_, err = broken.Current()
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
}

func TestLoadOrCreate_RecoversMissingKeyWithPassphrase(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, saltPath := newTestManager(t, store, meta, prompt)
	key, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Remove(testName))

	again := NewManager(store, meta, saltPath, testName, prompt, logging.Nop())
	got, err := again.LoadOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, key, got)

	restored, err := store.Get(testName)
	require.NoError(t, err)
	require.Equal(t, key, restored)
}

func TestLoadOrCreate_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, saltPath := newTestManager(t, store, meta, prompt)
	_, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Remove(testName))

	wrong, _ := fixedPassphrase("not-it")
	again := NewManager(store, meta, saltPath, testName, wrong, logging.Nop())
	_, err = again.LoadOrCreate(ctx)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	require.ErrorIs(t, err, common.ErrWrongPassphrase)
}

func TestCurrent_LazyLoadAndForget(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, _ := newTestManager(t, store, meta, prompt)
	key, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)

	m.Forget()
	got, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, key, got)

	got[0] ^= 0xff
	again, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, key, again, "Current must return a copy")

	m.Forget()
	require.NoError(t, store.Remove(testName))
	_, err = m.Current()
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
}

func TestRotate_CommitPromotesNewKey(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, saltPath := newTestManager(t, store, meta, prompt)
	oldKey, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)
	oldSalt, err := os.ReadFile(saltPath)
	require.NoError(t, err)

	var seenOld, seenNew []byte
	err = m.Rotate(ctx, []byte("new-pw"), func(ctx context.Context, o, n, verifier []byte) error {
		seenOld = append([]byte(nil), o...)
		seenNew = append([]byte(nil), n...)
		return meta.Set(ctx, metadata.KeyVerifier, verifier)
	})
	require.NoError(t, err)
	require.Equal(t, oldKey, seenOld)
	require.NotEqual(t, oldKey, seenNew)

	cur, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, seenNew, cur)

	stored, err := store.Get(testName)
	require.NoError(t, err)
	require.Equal(t, seenNew, stored)

	_, err = store.Get(testName + stagedSuffix)
	require.ErrorIs(t, err, ErrNoKey)
	_, err = os.Stat(saltPath + stagedSuffix)
	require.True(t, os.IsNotExist(err))

	newSalt, err := os.ReadFile(saltPath)
	require.NoError(t, err)
	require.NotEqual(t, oldSalt, newSalt)
	require.Equal(t, seenNew, cryptox.DeriveKey([]byte("new-pw"), newSalt))
}

func TestRotate_FailureKeepsOldKey(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, saltPath := newTestManager(t, store, meta, prompt)
	oldKey, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)

	boom := errors.New("reencrypt failed")
	err = m.Rotate(ctx, []byte("new-pw"), func(context.Context, []byte, []byte, []byte) error { return boom })
	require.ErrorIs(t, err, boom)

	cur, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, oldKey, cur)

	_, err = store.Get(testName + stagedSuffix)
	require.ErrorIs(t, err, ErrNoKey)
	_, err = os.Stat(saltPath + stagedSuffix)
	require.True(t, os.IsNotExist(err))
}

func TestLoadOrCreate_PromotesCommittedStagedKey(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, saltPath := newTestManager(t, store, meta, prompt)
	_, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)

	// Simulate a crash after the database committed the new verifier but
	// before the staged key was promoted.
	newSalt := common.GenerateRandByteArray(cryptox.SaltSize)
	require.NoError(t, writeSalt(saltPath+stagedSuffix, newSalt))
	newKey := cryptox.DeriveKey([]byte("new-pw"), newSalt)
	require.NoError(t, store.Set(testName+stagedSuffix, newKey))
	require.NoError(t, meta.Set(ctx, metadata.KeyVerifier, cryptox.MakeVerifier(newKey)))

	again := NewManager(store, meta, saltPath, testName, prompt, logging.Nop())
	got, err := again.LoadOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, newKey, got)

	salt, err := readSalt(saltPath)
	require.NoError(t, err)
	require.Equal(t, newSalt, salt)
}

func TestLoadOrCreate_DiscardsUncommittedStagedKey(t *testing.T) {
	ctx := context.Background()
	store := NewKeyringStore(keyring.NewArrayKeyring(nil))
	meta := setupMeta(t)
	prompt, _ := fixedPassphrase("pw")

	m, saltPath := newTestManager(t, store, meta, prompt)
	key, err := m.LoadOrCreate(ctx)
	require.NoError(t, err)

	require.NoError(t, writeSalt(saltPath+stagedSuffix, common.GenerateRandByteArray(cryptox.SaltSize)))
	require.NoError(t, store.Set(testName+stagedSuffix, common.GenerateRandByteArray(cryptox.KeySize)))

	again := NewManager(store, meta, saltPath, testName, prompt, logging.Nop())
	got, err := again.LoadOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = store.Get(testName + stagedSuffix)
	require.ErrorIs(t, err, ErrNoKey)
	_, err = os.Stat(saltPath + stagedSuffix)
	require.True(t, os.IsNotExist(err))
}
