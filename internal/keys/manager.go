// Package keys manages the vault master key: first-run derivation from a
// passphrase, retrieval from the OS credential store, passphrase recovery
// and rotation.
//
// The key is never written to the database or to a plain file. The database
// holds only a SHA-256 verifier; the salt lives in a small file next to it.
package keys

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/cryptox"
	"github.com/dmitrijs2005/vault/internal/logging"
	"github.com/dmitrijs2005/vault/internal/repositories/metadata"
)

// stagedSuffix marks the key and salt of a rotation that has not been
// promoted yet.
const stagedSuffix = ".next"

// PassphraseFunc asks the user for the passphrase. confirm is true on first
// run, when the caller should ask twice.
type PassphraseFunc func(ctx context.Context, confirm bool) ([]byte, error)

// ReencryptFunc re-seals every encrypted field from oldKey to newKey and
// stores verifier, all in one transaction that it commits before returning.
type ReencryptFunc func(ctx context.Context, oldKey, newKey, verifier []byte) error

type Manager struct {
	store    KeyStore
	meta     metadata.Repository
	saltPath string
	name     string
	prompt   PassphraseFunc
	log      logging.Logger

	mu  sync.RWMutex
	key []byte
}

func NewManager(store KeyStore, meta metadata.Repository, saltPath, name string, prompt PassphraseFunc, log logging.Logger) *Manager {
	return &Manager{store: store, meta: meta, saltPath: saltPath, name: name, prompt: prompt, log: log}
}

func unavailable(err error) error {
	if errors.Is(err, common.ErrKeyUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrKeyUnavailable, err)
}

// LoadOrCreate makes the master key available in memory. On first run it
// derives the key from a new passphrase and stores it in the credential
// store. Later runs read it back; if the credential store has lost it, the
// passphrase is asked again and checked against the stored verifier.
func (m *Manager) LoadOrCreate(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	verifier, err := m.meta.Get(ctx, metadata.KeyVerifier)
	if err != nil {
		return nil, err
	}

	if verifier == nil {
		return m.create(ctx)
	}

	m.recoverStaged(verifier)

	key, err := m.store.Get(m.name)
	switch {
	case err == nil && subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), verifier) == 1:
		m.key = key
		return append([]byte(nil), key...), nil
	case err == nil:
		m.log.Warn(ctx, "credential store key does not match this vault")
	case errors.Is(err, ErrNoKey):
		m.log.Warn(ctx, "master key missing from credential store")
	default:
		return nil, unavailable(err)
	}

	return m.recoverFromPassphrase(ctx, verifier)
}

func (m *Manager) create(ctx context.Context) ([]byte, error) {
	if m.prompt == nil {
		return nil, unavailable(errors.New("no passphrase source"))
	}

	salt, err := loadOrCreateSalt(m.saltPath)
	if err != nil {
		return nil, err
	}

	pass, err := m.prompt(ctx, true)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pass)

	key := cryptox.DeriveKey(pass, salt)
	if err := m.store.Set(m.name, key); err != nil {
		return nil, unavailable(fmt.Errorf("failed to store key: %w", err))
	}
	if err := m.meta.Set(ctx, metadata.KeyVerifier, cryptox.MakeVerifier(key)); err != nil {
		return nil, err
	}

	m.log.Info(ctx, "master key created")
	m.key = key
	return append([]byte(nil), key...), nil
}

func (m *Manager) recoverFromPassphrase(ctx context.Context, verifier []byte) ([]byte, error) {
	if m.prompt == nil {
		return nil, unavailable(ErrNoKey)
	}

	salt, err := readSalt(m.saltPath)
	if err != nil {
		return nil, unavailable(fmt.Errorf("failed to read salt: %w", err))
	}

	pass, err := m.prompt(ctx, false)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pass)

	key := cryptox.DeriveKey(pass, salt)
	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), verifier) == 0 {
		return nil, unavailable(common.ErrWrongPassphrase)
	}

	if err := m.store.Set(m.name, key); err != nil {
		m.log.Warn(ctx, "could not restore key into credential store", "error", err)
	}
	m.key = key
	return append([]byte(nil), key...), nil
}

// recoverStaged finishes or discards a rotation interrupted between the
// database commit and key promotion. A staged key that matches the stored
// verifier was committed and is promoted; any other staged key is dropped.
func (m *Manager) recoverStaged(verifier []byte) {
	staged, err := m.store.Get(m.name + stagedSuffix)
	if err != nil {
		return
	}

	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(staged), verifier) == 1 {
		if err := m.promote(staged); err != nil {
			m.log.Error(context.Background(), "failed to promote staged key", "error", err)
		}
		return
	}

	_ = m.store.Remove(m.name + stagedSuffix)
	_ = os.Remove(m.saltPath + stagedSuffix)
}

func (m *Manager) promote(key []byte) error {
	if err := m.store.Set(m.name, key); err != nil {
		return err
	}
	if err := os.Rename(m.saltPath+stagedSuffix, m.saltPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return m.store.Remove(m.name + stagedSuffix)
}

// Current returns a copy of the in-memory key. If none is loaded it tries the
// credential store once, without prompting. Any failure is ErrKeyUnavailable.
func (m *Manager) Current() ([]byte, error) {
	m.mu.RLock()
	if m.key != nil {
		defer m.mu.RUnlock()
		return append([]byte(nil), m.key...), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.key != nil {
		return append([]byte(nil), m.key...), nil
	}

	key, err := m.store.Get(m.name)
	if err != nil {
		return nil, unavailable(err)
	}
	verifier, err := m.meta.Get(context.Background(), metadata.KeyVerifier)
	if err != nil {
		return nil, unavailable(err)
	}
	if verifier == nil || subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), verifier) == 0 {
		return nil, unavailable(errors.New("credential store key does not match this vault"))
	}

	m.key = key
	return append([]byte(nil), key...), nil
}

// Forget wipes the in-memory key.
func (m *Manager) Forget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	common.WipeByteArray(m.key)
	m.key = nil
}

// Rotate derives a new key from newPassphrase under a fresh salt and hands
// both keys to reencrypt. The new key and salt are staged first and promoted
// only after reencrypt has committed; on error they are discarded and the
// old key stays active.
func (m *Manager) Rotate(ctx context.Context, newPassphrase []byte, reencrypt ReencryptFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key == nil {
		return unavailable(errors.New("no key loaded"))
	}
	oldKey := m.key

	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	if err := writeSalt(m.saltPath+stagedSuffix, salt); err != nil {
		return fmt.Errorf("failed to stage salt: %w", err)
	}
	newKey := cryptox.DeriveKey(newPassphrase, salt)

	discard := func() {
		_ = m.store.Remove(m.name + stagedSuffix)
		_ = os.Remove(m.saltPath + stagedSuffix)
	}

	if err := m.store.Set(m.name+stagedSuffix, newKey); err != nil {
		discard()
		return unavailable(fmt.Errorf("failed to stage key: %w", err))
	}

	if err := reencrypt(ctx, oldKey, newKey, cryptox.MakeVerifier(newKey)); err != nil {
		discard()
		return err
	}

	m.key = newKey
	common.WipeByteArray(oldKey)

	if err := m.promote(newKey); err != nil {
		m.log.Error(ctx, "key rotated but promotion is pending until next start", "error", err)
	}
	m.log.Info(ctx, "master key rotated")
	return nil
}
