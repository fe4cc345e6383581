package runner

import (
	"context"
	"strings"

	"github.com/ruteri/scone-policy-sessions/interfaces"
)

// Mount binds a host path into a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Command describes one blocking external invocation.
type Command struct {
	// Image is the container image to run Args in. Runners that execute
	// locally ignore it.
	Image   string
	Args    []string
	Env     []string
	Mounts  []Mount
	WorkDir string
}

// String renders the command for log lines. Environment values are omitted.
func (c Command) String() string {
	if c.Image == "" {
		return strings.Join(c.Args, " ")
	}
	return c.Image + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with status zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// AsError converts a failed result into a CommandError for op.
func (r Result) AsError(op string) *interfaces.CommandError {
	return &interfaces.CommandError{
		Op:       op,
		ExitCode: r.ExitCode,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
	}
}

// Runner executes commands. A returned error means the command could not be
// run at all; a command that ran and failed is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}
