package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/platform/wechat"
	"github.com/phrazzld/haoping-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserService_BindPhone(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	phones := &MockPhoneExchanger{}
	users := &MockUserStore{}
	phones.On("PhoneNumber", mock.Anything, "code-1").
		Return(&wechat.PhoneInfo{PhoneNumber: "13800138000", CountryCode: "86"}, nil)
	users.On("UpdateMobile", mock.Anything, userID, "13800138000").Return(nil)

	svc, err := NewUserService(users, phones, nil)
	require.NoError(t, err)

	phone, err := svc.BindPhone(context.Background(), userID, " code-1 ")
	require.NoError(t, err)
	assert.Equal(t, "13800138000", phone)
	phones.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestUserService_BindPhoneFailures(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	tests := []struct {
		name    string
		userID  uuid.UUID
		code    string
		setup   func(p *MockPhoneExchanger, u *MockUserStore)
		wantErr error
	}{
		{
			name:    "missing code",
			userID:  userID,
			code:    " ",
			setup:   func(p *MockPhoneExchanger, u *MockUserStore) {},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "missing user",
			userID:  uuid.Nil,
			code:    "c",
			setup:   func(p *MockPhoneExchanger, u *MockUserStore) {},
			wantErr: ErrInvalidRequest,
		},
		{
			name:   "exchange rejected",
			userID: userID,
			code:   "c",
			setup: func(p *MockPhoneExchanger, u *MockUserStore) {
				p.On("PhoneNumber", mock.Anything, "c").Return(nil, errors.New("errcode 40029: invalid code"))
			},
			wantErr: ErrUpstream,
		},
		{
			name:   "unknown user",
			userID: userID,
			code:   "c",
			setup: func(p *MockPhoneExchanger, u *MockUserStore) {
				p.On("PhoneNumber", mock.Anything, "c").Return(&wechat.PhoneInfo{PhoneNumber: "1"}, nil)
				u.On("UpdateMobile", mock.Anything, userID, "1").Return(store.ErrUserNotFound)
			},
			wantErr: ErrNotFound,
		},
		{
			name:   "store failure",
			userID: userID,
			code:   "c",
			setup: func(p *MockPhoneExchanger, u *MockUserStore) {
				p.On("PhoneNumber", mock.Anything, "c").Return(&wechat.PhoneInfo{PhoneNumber: "1"}, nil)
				u.On("UpdateMobile", mock.Anything, userID, "1").Return(errors.New("disk full"))
			},
			wantErr: ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			phones := &MockPhoneExchanger{}
			users := &MockUserStore{}
			tt.setup(phones, users)

			svc, err := NewUserService(users, phones, nil)
			require.NoError(t, err)

			_, err = svc.BindPhone(context.Background(), tt.userID, tt.code)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserService_NotConfigured(t *testing.T) {
	t.Parallel()

	svc, err := NewUserService(&MockUserStore{}, nil, nil)
	require.NoError(t, err)

	_, err = svc.BindPhone(context.Background(), uuid.New(), "c")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, credential.ErrCredentialUnavailable)

	_, err = NewUserService(nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}
