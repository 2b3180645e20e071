package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/haoping-api/internal/domain"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/store"
)

const categoryColumns = `id, name, keyword, parent_id, icon, active_icon, use_count`

// PostgresCategoryStore implements store.CategoryStore.
type PostgresCategoryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.CategoryStore = (*PostgresCategoryStore)(nil)

// NewPostgresCategoryStore creates a category store on db.
func NewPostgresCategoryStore(db store.DBTX, logger *slog.Logger) *PostgresCategoryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCategoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "category_store")),
	}
}

// WithTx implements store.CategoryStore.
func (s *PostgresCategoryStore) WithTx(tx *sql.Tx) store.CategoryStore {
	return &PostgresCategoryStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var (
		c                         domain.Category
		keyword, icon, activeIcon sql.NullString
		parentID                  sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &keyword, &parentID, &icon, &activeIcon, &c.UseCount); err != nil {
		return nil, err
	}
	c.Keyword = keyword.String
	c.Icon = icon.String
	c.ActiveIcon = activeIcon.String
	if parentID.Valid {
		id := parentID.Int64
		c.ParentID = &id
	}
	return &c, nil
}

// GetByID implements store.CategoryStore.
func (s *PostgresCategoryStore) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("category not found", slog.Int64("category_id", id))
			return nil, store.ErrCategoryNotFound
		}
		log.Error("failed to get category", slog.Int64("category_id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get category: %w", MapError(err))
	}
	return c, nil
}

// FindByNameOrKeyword implements store.CategoryStore. Top-level categories
// win over children with the same keyword.
func (s *PostgresCategoryStore) FindByNameOrKeyword(ctx context.Context, value string) (*domain.Category, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + categoryColumns + ` FROM categories
		WHERE name = $1 OR keyword = $1
		ORDER BY (name = $1) DESC, (parent_id IS NULL) DESC, id
		LIMIT 1`
	c, err := scanCategory(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("category not found by name or keyword", slog.String("value", value))
			return nil, store.ErrCategoryNotFound
		}
		log.Error("failed to find category", slog.String("value", value), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to find category: %w", MapError(err))
	}
	return c, nil
}

// IncrementUsage implements store.CategoryStore.
func (s *PostgresCategoryStore) IncrementUsage(ctx context.Context, id int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx,
		`UPDATE categories SET use_count = use_count + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to increment category usage", slog.Int64("category_id", id), slog.String("error", err.Error()))
		return fmt.Errorf("failed to increment category usage: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, store.ErrCategoryNotFound); err != nil {
		log.Warn("category usage increment matched no rows", slog.Int64("category_id", id))
		return err
	}
	return nil
}

// Upsert implements store.CategoryStore.
func (s *PostgresCategoryStore) Upsert(ctx context.Context, c *domain.Category) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := c.Validate(); err != nil {
		log.Warn("category validation failed during upsert", slog.String("name", c.Name), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO categories (name, keyword, parent_id, icon, active_icon)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			keyword = EXCLUDED.keyword,
			parent_id = EXCLUDED.parent_id,
			icon = EXCLUDED.icon,
			active_icon = EXCLUDED.active_icon,
			updated_at = NOW()
		RETURNING id, use_count
	`
	err := s.db.QueryRowContext(ctx, query,
		c.Name,
		nullString(c.Keyword),
		nullInt64(c.ParentID),
		nullString(c.Icon),
		nullString(c.ActiveIcon),
	).Scan(&c.ID, &c.UseCount)
	if err != nil {
		log.Error("failed to upsert category", slog.String("name", c.Name), slog.String("error", err.Error()))
		return fmt.Errorf("failed to upsert category: %w", MapError(err))
	}

	log.Debug("category upserted", slog.Int64("category_id", c.ID), slog.String("name", c.Name))
	return nil
}
