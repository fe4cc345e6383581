package attestation

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockMeasurer mocks the interfaces.Measurer interface
type MockMeasurer struct {
	mock.Mock
}

// Measure mocks the Measure method
func (m *MockMeasurer) Measure(ctx context.Context, image, binary string) (string, error) {
	args := m.Called(ctx, image, binary)
	return args.String(0), args.Error(1)
}
