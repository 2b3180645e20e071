package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/store"
)

// PostgresUserStore implements store.UserStore.
type PostgresUserStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.UserStore = (*PostgresUserStore)(nil)

// NewPostgresUserStore creates a user store on db.
func NewPostgresUserStore(db store.DBTX, logger *slog.Logger) *PostgresUserStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserStore{
		db:     db,
		logger: logger.With(slog.String("component", "user_store")),
	}
}

// UpdateMobile implements store.UserStore.
func (s *PostgresUserStore) UpdateMobile(ctx context.Context, id uuid.UUID, mobile string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET mobile = $1, updated_at = NOW() WHERE id = $2`, mobile, id)
	if err != nil {
		log.Error("failed to update user mobile", slog.String("user_id", id.String()), slog.String("error", err.Error()))
		return fmt.Errorf("failed to update user mobile: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, store.ErrUserNotFound); err != nil {
		return err
	}
	log.Info("user mobile bound", slog.String("user_id", id.String()))
	return nil
}
