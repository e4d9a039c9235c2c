// Package cryptox is the field codec of the vault: AES-256-GCM sealing of
// individual values, passphrase key derivation and blind search tokens.
//
// Nonces are generated inside Encrypt and never accepted from callers, so a
// nonce cannot be reused under the same key by construction.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/vault/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the master key length in bytes (AES-256).
	KeySize = 32
	// SaltSize is the length of the per-installation KDF salt.
	SaltSize = 32
	// KDFIterations is the PBKDF2-HMAC-SHA256 work factor.
	KDFIterations = 210_000

	nonceSize = 12
	tagSize   = 16
)

// EncryptedField is a sealed value: the GCM nonce plus ciphertext with the
// authentication tag appended. Its contents are meaningful only to Decrypt.
type EncryptedField struct {
	Nonce      []byte
	Ciphertext []byte
}

// Bytes serializes the field as nonce || ciphertext || tag.
func (f EncryptedField) Bytes() []byte {
	out := make([]byte, 0, len(f.Nonce)+len(f.Ciphertext))
	out = append(out, f.Nonce...)
	return append(out, f.Ciphertext...)
}

// ParseField splits a serialized blob. A blob too short to hold a nonce and
// a tag is reported as ErrAuthentication.
func ParseField(blob []byte) (EncryptedField, error) {
	if len(blob) < nonceSize+tagSize {
		return EncryptedField{}, fmt.Errorf("blob of %d bytes: %w", len(blob), common.ErrAuthentication)
	}
	return EncryptedField{
		Nonce:      append([]byte(nil), blob[:nonceSize]...),
		Ciphertext: append([]byte(nil), blob[nonceSize:]...),
	}, nil
}

// MakeVerifier returns a SHA-256 digest of the key. It is stored in place of
// the key so a re-derived key can be checked without persisting the key.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveKey stretches a passphrase into a 256-bit key with PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, KDFIterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key of %d bytes: %w", len(key), common.ErrKeyUnavailable)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext, key []byte) (EncryptedField, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return EncryptedField{}, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedField{}, err
	}

	return EncryptedField{Nonce: nonce, Ciphertext: aesgcm.Seal(nil, nonce, plaintext, nil)}, nil
}

// Decrypt opens a sealed field. Any tag mismatch, truncation or corruption
// yields ErrAuthentication and no plaintext.
func Decrypt(field EncryptedField, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(field.Nonce) != aesgcm.NonceSize() || len(field.Ciphertext) < tagSize {
		return nil, common.ErrAuthentication
	}

	plaintext, err := aesgcm.Open(nil, field.Nonce, field.Ciphertext, nil)
	if err != nil {
		return nil, common.ErrAuthentication
	}
	return plaintext, nil
}

// Seal encrypts and serializes in one step. Empty input is stored as nil so
// optional fields stay NULL in the database.
func Seal(plaintext string, key []byte) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	f, err := Encrypt([]byte(plaintext), key)
	if err != nil {
		return nil, err
	}
	return f.Bytes(), nil
}

// Open is the inverse of Seal.
func Open(blob []byte, key []byte) (string, error) {
	if blob == nil {
		return "", nil
	}
	f, err := ParseField(blob)
	if err != nil {
		return "", err
	}
	b, err := Decrypt(f, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
