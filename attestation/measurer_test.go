package attestation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name    string
		result  runner.Result
		runErr  error
		want    string
		wantErr bool
	}{
		{name: "trims whitespace", result: runner.Result{Stdout: " 0a1b\n2c3d \n"}, want: "0a1b2c3d"},
		{name: "non-zero exit", result: runner.Result{ExitCode: 125, Stderr: "no such image"}, wantErr: true},
		{name: "empty output", result: runner.Result{Stdout: "\n"}, wantErr: true},
		{name: "runner failure", runErr: errors.New("docker down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &runner.MockRunner{}
			r.On("Run", mock.Anything, runner.Command{
				Image: "otpqr:scone",
				Args:  []string{"/bin/otpqr"},
				Env:   []string{HashModeEnv},
			}).Return(tt.result, tt.runErr)

			got, err := NewContainerMeasurer(r, testLogger()).Measure(context.Background(), "otpqr:scone", "/bin/otpqr")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, interfaces.ErrMeasurementFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			r.AssertExpectations(t)
		})
	}
}

func TestMeasure_CapturesStderr(t *testing.T) {
	r := &runner.MockRunner{}
	r.On("Run", mock.Anything, mock.Anything).Return(runner.Result{ExitCode: 1, Stderr: "binary not found"}, nil)

	_, err := NewContainerMeasurer(r, testLogger()).Measure(context.Background(), "img", "/bin/x")
	var cmdErr *interfaces.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "binary not found", cmdErr.Stderr)
}

func TestMeasure_RequiresImageAndBinary(t *testing.T) {
	r := &runner.MockRunner{}
	_, err := NewContainerMeasurer(r, testLogger()).Measure(context.Background(), "", "/bin/x")
	assert.ErrorIs(t, err, interfaces.ErrMeasurementFailed)
	r.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}
