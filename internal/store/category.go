package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/haoping-api/internal/domain"
)

// CategoryStore persists review categories.
type CategoryStore interface {
	// GetByID returns ErrCategoryNotFound when id does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Category, error)

	// FindByNameOrKeyword matches either column exactly.
	// Returns ErrCategoryNotFound when nothing matches.
	FindByNameOrKeyword(ctx context.Context, value string) (*domain.Category, error)

	// IncrementUsage adds one to use_count.
	// Returns ErrCategoryNotFound when no row was updated.
	IncrementUsage(ctx context.Context, id int64) error

	// Upsert inserts or updates by unique name and fills in the ID.
	Upsert(ctx context.Context, category *domain.Category) error

	// WithTx returns a store bound to tx.
	WithTx(tx *sql.Tx) CategoryStore
}
