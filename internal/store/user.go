package store

import (
	"context"

	"github.com/google/uuid"
)

// UserStore is the slice of user persistence this service needs.
type UserStore interface {
	// UpdateMobile returns ErrUserNotFound when the user does not exist.
	UpdateMobile(ctx context.Context, id uuid.UUID, mobile string) error
}
