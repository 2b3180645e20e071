package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/domain"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/store"
)

// CommentService manages a user's saved comments.
type CommentService interface {
	// List returns the user's comments, newest first.
	List(ctx context.Context, userID uuid.UUID, templatesOnly bool) ([]*domain.Comment, error)

	// SetTemplate toggles the template flag. current is the flag as the
	// caller last saw it; the stored value becomes !current.
	SetTemplate(ctx context.Context, id int64, userID uuid.UUID, current bool) (bool, error)

	// Delete removes a comment owned by userID.
	Delete(ctx context.Context, id int64, userID uuid.UUID) error
}

type commentServiceImpl struct {
	comments store.CommentStore
	logger   *slog.Logger
}

// NewCommentService creates a CommentService.
func NewCommentService(comments store.CommentStore, logger *slog.Logger) (CommentService, error) {
	if comments == nil {
		return nil, fmt.Errorf("%w: comments", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &commentServiceImpl{
		comments: comments,
		logger:   logger.With(slog.String("component", "comment_service")),
	}, nil
}

// List implements CommentService.
func (s *commentServiceImpl) List(ctx context.Context, userID uuid.UUID, templatesOnly bool) ([]*domain.Comment, error) {
	const op = "list_comments"
	log := logger.FromContextOrDefault(ctx, s.logger)

	if userID == uuid.Nil {
		return nil, newError(KindInvalidRequest, op, "user is required", nil)
	}
	comments, err := s.comments.ListByUser(ctx, userID, templatesOnly)
	if err != nil {
		log.Error("failed to list comments",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return nil, newError(KindPersistence, op, "failed to load comments", err)
	}
	return comments, nil
}

// SetTemplate implements CommentService.
func (s *commentServiceImpl) SetTemplate(ctx context.Context, id int64, userID uuid.UUID, current bool) (bool, error) {
	const op = "set_template"
	if err := validateOwnedID(op, id, userID); err != nil {
		return false, err
	}

	next := !current
	if err := s.comments.SetTemplate(ctx, id, userID, next); err != nil {
		return false, s.storeError(ctx, op, id, err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Debug("comment template flag updated",
		slog.Int64("comment_id", id),
		slog.Bool("is_template", next))
	return next, nil
}

// Delete implements CommentService.
func (s *commentServiceImpl) Delete(ctx context.Context, id int64, userID uuid.UUID) error {
	const op = "delete_comment"
	if err := validateOwnedID(op, id, userID); err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, id, userID); err != nil {
		return s.storeError(ctx, op, id, err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Debug("comment deleted", slog.Int64("comment_id", id))
	return nil
}

func validateOwnedID(op string, id int64, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return newError(KindInvalidRequest, op, "user is required", nil)
	}
	if id <= 0 {
		return newError(KindInvalidRequest, op, "invalid comment id", domain.ErrInvalidID)
	}
	return nil
}

func (s *commentServiceImpl) storeError(ctx context.Context, op string, id int64, err error) error {
	if store.IsNotFoundError(err) {
		return newError(KindNotFound, op, "comment not found", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Error("comment store failure",
		slog.String("operation", op),
		slog.Int64("comment_id", id),
		slog.String("error", err.Error()))
	return newError(KindPersistence, op, "failed to update comment", err)
}
