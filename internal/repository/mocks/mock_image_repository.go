package mocks

import (
	"context"

	"imagegen/internal/model"
	"imagegen/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockImageRepository struct {
	mock.Mock
}

func (m *MockImageRepository) Create(ctx context.Context, img *model.GeneratedImage) (*model.GeneratedImage, error) {
	args := m.Called(ctx, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GeneratedImage), args.Error(1)
}

func (m *MockImageRepository) FindByID(ctx context.Context, userID, id string) (*model.GeneratedImage, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GeneratedImage), args.Error(1)
}

func (m *MockImageRepository) ListByUser(ctx context.Context, userID string, pq repository.PageQuery) (*repository.PageResult[model.GeneratedImage], error) {
	args := m.Called(ctx, userID, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.GeneratedImage]), args.Error(1)
}

func (m *MockImageRepository) Delete(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}
