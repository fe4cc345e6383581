package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// ExecRunner runs commands as local subprocesses, for hosts where the tools
// (e.g. the scone CLI) are installed natively.
type ExecRunner struct {
	log *slog.Logger
}

func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if len(c.Args) == 0 {
		return Result{}, errors.New("empty command")
	}
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.WorkDir
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			// killed by signal, most likely through ctx
			res.ExitCode = 1
		}
	default:
		return Result{}, fmt.Errorf("failed to run %q: %w", c.Args[0], err)
	}

	r.log.Debug("Command finished",
		slog.String("command", c.String()),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("duration", time.Since(start)))

	return res, nil
}
