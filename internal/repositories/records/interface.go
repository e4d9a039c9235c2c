package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vault/internal/models"
)

// Sealed maps a sensitive field to its serialized EncryptedField.
type Sealed map[models.Field][]byte

// Row is a record with plaintext metadata populated and sensitive fields
// still sealed.
type Row struct {
	Record models.Record
	Sealed Sealed
}

// Cursor positions keyset pagination after the last row seen, in
// (created_at, id) descending order.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// SearchQuery is a cross-module match over plaintext metadata, tags and
// blind tokens.
type SearchQuery struct {
	Text   string
	Tokens []string
	Filter models.SearchFilter
}

type Repository interface {
	Insert(ctx context.Context, rec models.Record, sealed Sealed, tokens []string) (int64, error)
	Get(ctx context.Context, module models.Module, id int64) (*Row, error)
	Exists(ctx context.Context, module models.Module, id int64) (bool, error)
	Update(ctx context.Context, rec models.Record, sealed Sealed, tokens []string) error
	UpdateSealed(ctx context.Context, module models.Module, id int64, sealed Sealed, tokens []string) error
	SetTags(ctx context.Context, module models.Module, id int64, tags []string) error
	SetFavorite(ctx context.Context, module models.Module, id int64, fav bool) (bool, error)
	Delete(ctx context.Context, module models.Module, id int64) error

	Page(ctx context.Context, module models.Module, f models.ListFilter, after *Cursor, limit int) ([]Row, error)
	Search(ctx context.Context, module models.Module, q SearchQuery) ([]Row, error)
	Favorites(ctx context.Context, module models.Module) ([]int64, error)
	IDsBefore(ctx context.Context, module models.Module, cutoff time.Time) ([]int64, error)
	AllTags(ctx context.Context, module models.Module) (map[int64][]string, error)

	SpendingByCategory(ctx context.Context, from, to time.Time) ([]models.CategorySpending, error)
	MoodStatistics(ctx context.Context, since time.Time) ([]models.MoodStat, error)
}
