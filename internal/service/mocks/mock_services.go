package mocks

import (
	"context"
	"time"

	"imagegen/internal/model"
	"imagegen/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockSecureCopyService struct {
	mock.Mock
}

func (m *MockSecureCopyService) Copy(ctx context.Context, caller model.Identity, imageURL string) (*model.StoredImage, error) {
	args := m.Called(ctx, caller, imageURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoredImage), args.Error(1)
}

type MockURLSigner struct {
	mock.Mock
}

func (m *MockURLSigner) Sign(ctx context.Context, path string, ttl time.Duration) (*model.SignedURL, error) {
	args := m.Called(ctx, path, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SignedURL), args.Error(1)
}

type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) Record(ctx context.Context, userID, prompt, path string) (*model.GeneratedImage, error) {
	args := m.Called(ctx, userID, prompt, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GeneratedImage), args.Error(1)
}

func (m *MockHistoryService) List(ctx context.Context, caller model.Identity, limit, offset int) (*service.HistoryListResult, error) {
	args := m.Called(ctx, caller, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HistoryListResult), args.Error(1)
}

func (m *MockHistoryService) Get(ctx context.Context, caller model.Identity, id string) (*service.HistoryItem, error) {
	args := m.Called(ctx, caller, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HistoryItem), args.Error(1)
}

func (m *MockHistoryService) Delete(ctx context.Context, caller model.Identity, id string) error {
	args := m.Called(ctx, caller, id)
	return args.Error(0)
}

type MockGenerationService struct {
	mock.Mock
}

func (m *MockGenerationService) Generate(ctx context.Context, caller model.Identity, prompt string, observe service.Observer) (*service.GenerationResult, error) {
	args := m.Called(ctx, caller, prompt, observe)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.GenerationResult), args.Error(1)
}
