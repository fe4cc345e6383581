package session

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSessionService mocks the interfaces.SessionService interface
type MockSessionService struct {
	mock.Mock
}

// ReadSession mocks the ReadSession method
func (m *MockSessionService) ReadSession(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// VerifySession mocks the VerifySession method
func (m *MockSessionService) VerifySession(ctx context.Context, content string) (string, error) {
	args := m.Called(ctx, content)
	return args.String(0), args.Error(1)
}

// CheckDocument mocks the CheckDocument method
func (m *MockSessionService) CheckDocument(ctx context.Context, document string) error {
	args := m.Called(ctx, document)
	return args.Error(0)
}

// CreateSession mocks the CreateSession method
func (m *MockSessionService) CreateSession(ctx context.Context, document string) (string, error) {
	args := m.Called(ctx, document)
	return args.String(0), args.Error(1)
}
