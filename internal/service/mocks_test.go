package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/generation"
	"github.com/phrazzld/haoping-api/internal/platform/wechat"
	"github.com/phrazzld/haoping-api/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGenerator mocks generation.Generator.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockRecognizer mocks Recognizer.
type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) RecognizeAll(ctx context.Context, images []vision.Image) ([]vision.Result, error) {
	args := m.Called(ctx, images)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vision.Result), args.Error(1)
}

// MockPhoneExchanger mocks PhoneExchanger.
type MockPhoneExchanger struct {
	mock.Mock
}

func (m *MockPhoneExchanger) PhoneNumber(ctx context.Context, code string) (*wechat.PhoneInfo, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wechat.PhoneInfo), args.Error(1)
}

// MockUserStore mocks store.UserStore.
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) UpdateMobile(ctx context.Context, id uuid.UUID, mobile string) error {
	args := m.Called(ctx, id, mobile)
	return args.Error(0)
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var categoryCols = []string{"id", "name", "keyword", "parent_id", "icon", "active_icon", "use_count"}

func words(n float64) *float64 {
	return &n
}
