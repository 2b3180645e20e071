package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/platform/wechat"
	"github.com/phrazzld/haoping-api/internal/store"
)

// PhoneExchanger turns a mini-program phone code into a phone number.
type PhoneExchanger interface {
	PhoneNumber(ctx context.Context, code string) (*wechat.PhoneInfo, error)
}

// UserService manages account details.
type UserService interface {
	// BindPhone exchanges code for the user's phone number and stores it.
	BindPhone(ctx context.Context, userID uuid.UUID, code string) (string, error)
}

type userServiceImpl struct {
	users  store.UserStore
	phones PhoneExchanger
	logger *slog.Logger
}

// NewUserService creates a UserService. phones may be nil when WeChat is not
// configured, in which case BindPhone reports an upstream failure.
func NewUserService(users store.UserStore, phones PhoneExchanger, logger *slog.Logger) (UserService, error) {
	if users == nil {
		return nil, fmt.Errorf("%w: users", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &userServiceImpl{
		users:  users,
		phones: phones,
		logger: logger.With(slog.String("component", "user_service")),
	}, nil
}

// BindPhone implements UserService.
func (s *userServiceImpl) BindPhone(ctx context.Context, userID uuid.UUID, code string) (string, error) {
	const op = "bind_phone"
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("user_id", userID.String()))

	if userID == uuid.Nil {
		return "", newError(KindInvalidRequest, op, "user is required", nil)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", newError(KindInvalidRequest, op, "code is required", nil)
	}
	if s.phones == nil {
		return "", newError(KindUpstream, op, "phone binding is not configured", credential.ErrCredentialUnavailable)
	}

	info, err := s.phones.PhoneNumber(ctx, code)
	if err != nil {
		log.Warn("phone number exchange failed", slog.String("error", err.Error()))
		return "", newError(KindUpstream, op, "failed to get phone number", err)
	}

	if err := s.users.UpdateMobile(ctx, userID, info.PhoneNumber); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", newError(KindNotFound, op, "user not found", err)
		}
		log.Error("failed to store phone number", slog.String("error", err.Error()))
		return "", newError(KindPersistence, op, "failed to save phone number", err)
	}

	log.Info("phone number bound")
	return info.PhoneNumber, nil
}
