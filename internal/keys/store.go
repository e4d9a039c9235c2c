package keys

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// ErrNoKey is returned by a KeyStore that holds no item under the name.
var ErrNoKey = errors.New("key not in credential store")

// KeyStore is the OS credential store holding the master key.
type KeyStore interface {
	Get(name string) ([]byte, error)
	Set(name string, key []byte) error
	Remove(name string) error
}

// KeyringStore adapts a 99designs keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// KeyringConfig selects the credential store backend.
type KeyringConfig struct {
	ServiceName string
	// Backend is a keyring backend name such as "keychain", "secret-service",
	// "wincred" or "file". Empty lets the library choose.
	Backend string
	// FileDir is used by the "file" backend.
	FileDir string
}

// OpenKeyring opens the configured OS credential store.
func OpenKeyring(cfg KeyringConfig) (*KeyringStore, error) {
	kc := keyring.Config{
		ServiceName:      cfg.ServiceName,
		FileDir:          cfg.FileDir,
		FilePasswordFunc: keyring.TerminalPrompt,
	}
	if cfg.Backend != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.BackendType(cfg.Backend)}
	}

	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return NewKeyringStore(ring), nil
}

func (s *KeyringStore) Get(name string) ([]byte, error) {
	item, err := s.ring.Get(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, err
	}
	return bytes.Clone(item.Data), nil
}

func (s *KeyringStore) Set(name string, key []byte) error {
	return s.ring.Set(keyring.Item{
		Key:         name,
		Data:        bytes.Clone(key),
		Label:       name,
		Description: "vault master key",
	})
}

func (s *KeyringStore) Remove(name string) error {
	err := s.ring.Remove(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
