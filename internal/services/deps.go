package services

import (
	"time"

	"github.com/dmitrijs2005/vault/internal/dbx"
	"github.com/dmitrijs2005/vault/internal/logging"
	"github.com/dmitrijs2005/vault/internal/metrics"
	"github.com/dmitrijs2005/vault/internal/models"
)

// DefaultPageSize is the List page size when Deps.PageSize is unset.
const DefaultPageSize = 100

// KeyProvider hands out copies of the current master key.
type KeyProvider interface {
	Current() ([]byte, error)
}

// Deps are the collaborators shared by all services.
type Deps struct {
	Runner   *dbx.Runner
	Keys     KeyProvider
	Locks    *Locks
	Log      logging.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	PageSize int
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

func (d Deps) pageSize() int {
	if d.PageSize <= 0 {
		return DefaultPageSize
	}
	return d.PageSize
}

// key fetches the master key and counts refusals.
func (d Deps) key() ([]byte, error) {
	k, err := d.Keys.Current()
	if err != nil {
		d.Metrics.KeyUnavailable()
		return nil, err
	}
	return k, nil
}

// committed records a finished operation and its audit entry.
func (d Deps) committed(m models.Module, action models.ActionType) {
	d.Metrics.Operation(string(m), string(action))
	d.Metrics.AuditAppended(string(action))
}
