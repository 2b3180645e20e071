package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/haoping-api/internal/api/shared"
	"github.com/phrazzld/haoping-api/internal/service"
)

// UserHandler serves account endpoints.
type UserHandler struct {
	users  service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users service.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{users: users, logger: logger.With(slog.String("component", "user_handler"))}
}

// BindPhone handles POST /api/user/phone.
func (h *UserHandler) BindPhone(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req BindPhoneRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	phone, err := h.users.BindPhone(r.Context(), userID, req.Code)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, BindPhoneResponse{PhoneNumber: phone})
}
