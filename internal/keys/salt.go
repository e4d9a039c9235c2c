package keys

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/vault/internal/common"
	"github.com/dmitrijs2005/vault/internal/cryptox"
)

func readSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(salt) != cryptox.SaltSize {
		return nil, fmt.Errorf("salt file %s has %d bytes, want %d", path, len(salt), cryptox.SaltSize)
	}
	return salt, nil
}

func writeSalt(path string, salt []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(salt); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// loadOrCreateSalt returns the installation salt, creating it on first use.
func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := readSalt(path)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	salt = common.GenerateRandByteArray(cryptox.SaltSize)
	if err := writeSalt(path, salt); err != nil {
		return nil, fmt.Errorf("failed to write salt file: %w", err)
	}
	return salt, nil
}
