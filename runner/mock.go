package runner

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRunner mocks the Runner interface
type MockRunner struct {
	mock.Mock
}

// Run mocks the Run method
func (m *MockRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0).(Result), args.Error(1)
}
