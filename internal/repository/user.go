package repository

import (
	"context"

	"imagegen/internal/model"
)

// UserRepository defines data access for accounts and their profile.
type UserRepository interface {
	// Create inserts a user. A taken email yields ErrDuplicate.
	Create(ctx context.Context, u *model.User) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateName changes the profile name and returns the updated user.
	UpdateName(ctx context.Context, id, name string) (*model.User, error)
}
