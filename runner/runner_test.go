package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"testing"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResultAsError(t *testing.T) {
	res := Result{ExitCode: 3, Stdout: "partial", Stderr: "permission denied\n"}
	assert.False(t, res.Success())

	err := interfaces.WrapCommandError(interfaces.ErrSessionCreateFailed, res.AsError("session create"))
	assert.ErrorIs(t, err, interfaces.ErrSessionCreateFailed)

	var cmdErr *interfaces.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "scone session read ns", Command{Args: []string{"scone", "session", "read", "ns"}}.String())
	assert.Equal(t, "otpqr:scone /bin/otpqr", Command{Image: "otpqr:scone", Args: []string{"/bin/otpqr"}}.String())
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := NewExecRunner(testLogger())
	ctx := context.Background()

	res, err := r.Run(ctx, Command{Args: []string{"sh", "-c", "echo out; echo err >&2"}})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)

	res, err = r.Run(ctx, Command{Args: []string{"sh", "-c", "exit 7"}})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)

	res, err = r.Run(ctx, Command{Args: []string{"sh", "-c", "echo $POLICY_TEST_VAR"}, Env: []string{"POLICY_TEST_VAR=hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)

	dir := t.TempDir()
	res, err = r.Run(ctx, Command{Args: []string{"sh", "-c", "pwd"}, WorkDir: dir})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)

	_, err = r.Run(ctx, Command{Args: []string{"this-binary-does-not-exist-42"}})
	assert.Error(t, err)

	_, err = r.Run(ctx, Command{})
	assert.Error(t, err)
}
