// Package filex holds small filesystem helpers for files the vault writes
// outside its database.
package filex

import (
	"errors"
	"fmt"
	"os"
)

// EnsureDir creates dir, and any parents, readable by the owner only. An
// existing directory is left as is.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// Atomic is a temporary file that appears under its final name only after
// Commit. Until then it is hidden in the same directory, so the rename
// cannot cross filesystems.
type Atomic struct {
	f         *os.File
	closed    bool
	committed bool
}

// CreateAtomic creates dir if needed and opens a temporary file in it.
// pattern follows os.CreateTemp.
func CreateAtomic(dir, pattern string) (*Atomic, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &Atomic{f: f}, nil
}

func (a *Atomic) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

// Name is the temporary path.
func (a *Atomic) Name() string {
	return a.f.Name()
}

// Finish flushes and closes the file. It must precede Commit.
func (a *Atomic) Finish() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return errors.Join(a.f.Sync(), a.f.Close())
}

// Commit moves the finished file to path.
func (a *Atomic) Commit(path string) error {
	if !a.closed {
		return errors.New("commit before finish")
	}
	if err := os.Rename(a.f.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	a.committed = true
	return nil
}

// Abort removes the temporary file unless it was committed. It is safe to
// defer unconditionally.
func (a *Atomic) Abort() {
	if a.committed {
		return
	}
	if !a.closed {
		_ = a.f.Close()
		a.closed = true
	}
	_ = os.Remove(a.f.Name())
}
