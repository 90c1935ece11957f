package repository

import (
	"context"

	"imagegen/internal/model"
)

// ImageRepository defines data access for generation history using SQL queries only.
// Every read and delete is scoped to the owning user.
type ImageRepository interface {
	// Create inserts a history row and returns it as stored.
	Create(ctx context.Context, img *model.GeneratedImage) (*model.GeneratedImage, error)

	// FindByID returns the user's row with the given ID.
	FindByID(ctx context.Context, userID, id string) (*model.GeneratedImage, error)

	// ListByUser returns the user's rows, newest first, and the user's total row count.
	ListByUser(ctx context.Context, userID string, pq PageQuery) (*PageResult[model.GeneratedImage], error)

	// Delete removes the user's row. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, userID, id string) error
}
