package mocks

import (
	"context"

	"imagegen/internal/auth"
	"imagegen/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(model.Identity), args.Error(1)
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Session, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockAccounts) SignIn(ctx context.Context, in auth.SignInInput) (*auth.Session, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockAccounts) Profile(ctx context.Context, caller model.Identity) (*model.User, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockAccounts) UpdateName(ctx context.Context, caller model.Identity, name string) (*model.User, error) {
	args := m.Called(ctx, caller, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}
