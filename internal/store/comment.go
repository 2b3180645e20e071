package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/domain"
)

// CommentStore persists generated comments.
type CommentStore interface {
	// Create validates and inserts comment, filling in ID and CreatedAt.
	Create(ctx context.Context, comment *domain.Comment) error

	// ListByUser returns the user's comments, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, templatesOnly bool) ([]*domain.Comment, error)

	// SetTemplate sets is_template on a comment owned by userID.
	// Returns ErrCommentNotFound when no owned row matches.
	SetTemplate(ctx context.Context, id int64, userID uuid.UUID, isTemplate bool) error

	// Delete removes a comment owned by userID.
	// Returns ErrCommentNotFound when no owned row matches.
	Delete(ctx context.Context, id int64, userID uuid.UUID) error

	// WithTx returns a store bound to tx.
	WithTx(tx *sql.Tx) CommentStore
}
