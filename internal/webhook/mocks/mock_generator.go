package mocks

import (
	"context"

	"imagegen/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (model.RawImageReference, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(model.RawImageReference), args.Error(1)
}
