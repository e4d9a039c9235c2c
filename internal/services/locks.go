package services

import (
	"slices"
	"sync"

	"github.com/dmitrijs2005/vault/internal/models"
)

// Locks serializes access to the store inside one process.
//
// The gate is held shared by every operation and exclusively by key
// rotation. Writers additionally hold their module's mutex, so at most one
// write transaction per module is in flight. Callers must not nest
// acquisitions: a shared hold taken while a rotation waits would deadlock.
type Locks struct {
	gate    sync.RWMutex
	writers map[models.Module]*sync.Mutex
}

func NewLocks() *Locks {
	l := &Locks{writers: make(map[models.Module]*sync.Mutex)}
	for _, m := range append(models.Modules(), models.ModuleSystem) {
		l.writers[m] = &sync.Mutex{}
	}
	return l
}

// Read takes the gate shared.
func (l *Locks) Read() (unlock func()) {
	l.gate.RLock()
	return l.gate.RUnlock
}

// Write takes the gate shared and the writer mutex of each module, in a fixed
// order.
func (l *Locks) Write(modules ...models.Module) (unlock func()) {
	ms := slices.Clone(modules)
	slices.Sort(ms)
	ms = slices.Compact(ms)

	l.gate.RLock()
	held := make([]*sync.Mutex, 0, len(ms))
	for _, m := range ms {
		mu, ok := l.writers[m]
		if !ok {
			continue
		}
		mu.Lock()
		held = append(held, mu)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
		l.gate.RUnlock()
	}
}

// Exclusive takes the gate exclusively, waiting for every in-flight
// operation to finish.
func (l *Locks) Exclusive() (unlock func()) {
	l.gate.Lock()
	return l.gate.Unlock
}
