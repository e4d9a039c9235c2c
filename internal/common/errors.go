// Package common defines sentinel errors and small helpers shared by every
// layer of the vault. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors for required or malformed plaintext fields.
	ErrValidation = errors.New("validation error")

	// Key and codec errors.
	ErrKeyUnavailable = errors.New("key unavailable")
	ErrAuthentication = errors.New("authentication failed: ciphertext rejected")

	// Storage errors.
	ErrStoreLocked        = errors.New("store locked by another process")
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrWrongPassphrase is returned when a derived key does not match the
	// stored verifier.
	ErrWrongPassphrase = errors.New("wrong passphrase")
)
