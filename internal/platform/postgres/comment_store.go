package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/domain"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/store"
)

// PostgresCommentStore implements store.CommentStore.
type PostgresCommentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.CommentStore = (*PostgresCommentStore)(nil)

// NewPostgresCommentStore creates a comment store on db.
func NewPostgresCommentStore(db store.DBTX, logger *slog.Logger) *PostgresCommentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCommentStore{
		db:     db,
		logger: logger.With(slog.String("component", "comment_store")),
	}
}

// WithTx implements store.CommentStore.
func (s *PostgresCommentStore) WithTx(tx *sql.Tx) store.CommentStore {
	return &PostgresCommentStore{db: tx, logger: s.logger}
}

// Create implements store.CommentStore.
func (s *PostgresCommentStore) Create(ctx context.Context, c *domain.Comment) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := c.Validate(); err != nil {
		log.Warn("comment validation failed during create",
			slog.String("user_id", c.UserID.String()),
			slog.String("error", err.Error()))
		return err
	}

	query := `
		INSERT INTO comments (user_id, category_id, category_name, content, target_words, is_template, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		c.UserID,
		c.CategoryID,
		c.CategoryName,
		c.Content,
		c.TargetWords,
		c.IsTemplate,
		c.CreatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			log.Warn("foreign key violation during comment creation",
				slog.String("user_id", c.UserID.String()),
				slog.Int64("category_id", c.CategoryID))
			return fmt.Errorf("%w: user %s or category %d not found", store.ErrInvalidEntity, c.UserID, c.CategoryID)
		}
		log.Error("failed to create comment",
			slog.String("user_id", c.UserID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create comment: %w", MapError(err))
	}

	log.Info("comment created",
		slog.Int64("comment_id", c.ID),
		slog.String("user_id", c.UserID.String()),
		slog.Int64("category_id", c.CategoryID))
	return nil
}

// ListByUser implements store.CommentStore.
func (s *PostgresCommentStore) ListByUser(ctx context.Context, userID uuid.UUID, templatesOnly bool) ([]*domain.Comment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, category_id, category_name, content, target_words, is_template, created_at
		FROM comments
		WHERE user_id = $1 AND (NOT $2 OR is_template)
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, templatesOnly)
	if err != nil {
		log.Error("failed to list comments", slog.String("user_id", userID.String()), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list comments: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	comments := []*domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.UserID, &c.CategoryID, &c.CategoryName, &c.Content, &c.TargetWords, &c.IsTemplate, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}

	log.Debug("listed comments", slog.String("user_id", userID.String()), slog.Int("count", len(comments)))
	return comments, nil
}

// SetTemplate implements store.CommentStore.
func (s *PostgresCommentStore) SetTemplate(ctx context.Context, id int64, userID uuid.UUID, isTemplate bool) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx,
		`UPDATE comments SET is_template = $1 WHERE id = $2 AND user_id = $3`,
		isTemplate, id, userID)
	if err != nil {
		log.Error("failed to update comment template flag", slog.Int64("comment_id", id), slog.String("error", err.Error()))
		return fmt.Errorf("failed to update comment: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrCommentNotFound)
}

// Delete implements store.CommentStore.
func (s *PostgresCommentStore) Delete(ctx context.Context, id int64, userID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		log.Error("failed to delete comment", slog.Int64("comment_id", id), slog.String("error", err.Error()))
		return fmt.Errorf("failed to delete comment: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, store.ErrCommentNotFound); err != nil {
		return err
	}
	log.Info("comment deleted", slog.Int64("comment_id", id), slog.String("user_id", userID.String()))
	return nil
}
