package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/domain"
	"github.com/phrazzld/haoping-api/internal/service"
	"github.com/phrazzld/haoping-api/internal/vision"
	"github.com/stretchr/testify/mock"
)

type MockReviewService struct {
	mock.Mock
}

func (m *MockReviewService) Generate(ctx context.Context, req service.GenerationRequest) (*domain.Comment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comment), args.Error(1)
}

func (m *MockReviewService) Recognize(ctx context.Context, images []vision.Image) (*service.Recognition, error) {
	args := m.Called(ctx, images)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Recognition), args.Error(1)
}

type MockCommentService struct {
	mock.Mock
}

func (m *MockCommentService) List(ctx context.Context, userID uuid.UUID, templatesOnly bool) ([]*domain.Comment, error) {
	args := m.Called(ctx, userID, templatesOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Comment), args.Error(1)
}

func (m *MockCommentService) SetTemplate(ctx context.Context, id int64, userID uuid.UUID, current bool) (bool, error) {
	args := m.Called(ctx, id, userID, current)
	return args.Bool(0), args.Error(1)
}

func (m *MockCommentService) Delete(ctx context.Context, id int64, userID uuid.UUID) error {
	return m.Called(ctx, id, userID).Error(0)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) BindPhone(ctx context.Context, userID uuid.UUID, code string) (string, error) {
	args := m.Called(ctx, userID, code)
	return args.String(0), args.Error(1)
}
