package interfaces

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SessionService is the command contract of the remote session store.
type SessionService interface {
	// ReadSession fetches the current content of a named session. Any failure
	// is interpreted by callers as "session does not exist yet".
	ReadSession(ctx context.Context, name string) (string, error)

	// VerifySession checks that content is a validly signed session and
	// returns its canonical hash.
	VerifySession(ctx context.Context, content string) (string, error)

	// CheckDocument validates a rendered document without committing it.
	CheckDocument(ctx context.Context, document string) error

	// CreateSession creates or updates a session and returns its new hash.
	CreateSession(ctx context.Context, document string) (string, error)
}

// Measurer computes the attestation measurement (MRENCLAVE) of a binary
// inside a container image.
type Measurer interface {
	Measure(ctx context.Context, image, binary string) (string, error)
}

var (
	// ErrCorruptState is returned when the persisted state record cannot be decoded.
	ErrCorruptState = errors.New("corrupt state")

	// ErrTemplate is returned when a template references an undefined binding.
	ErrTemplate = errors.New("template error")

	// ErrSessionNotFound is returned when a session cannot be read from the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionVerifyFailed is returned when read session content fails verification.
	ErrSessionVerifyFailed = errors.New("session verification failed")

	// ErrTemplateInvalid is returned when the store rejects a rendered document on dry-run.
	ErrTemplateInvalid = errors.New("session document invalid")

	// ErrSessionCreateFailed is returned when the store rejects a session commit.
	ErrSessionCreateFailed = errors.New("session creation failed")

	// ErrMeasurementFailed is returned when the MRENCLAVE cannot be determined.
	ErrMeasurementFailed = errors.New("measurement failed")

	// ErrPolicyExists is returned when a policy file would be overwritten without force.
	ErrPolicyExists = errors.New("policy file already exists")

	// ErrCommandNotRun is returned when an external command could not be
	// started or did not finish (runtime unavailable, missing image,
	// cancellation). The command produced no verdict.
	ErrCommandNotRun = errors.New("external command could not be run")

	// ErrWorkloadFailed is returned when a session workload exits unsuccessfully.
	ErrWorkloadFailed = errors.New("workload failed")
)

// CommandError carries the captured output of a failed external command.
type CommandError struct {
	Op       string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if msg == "" {
		return fmt.Sprintf("%s: exit code %d", e.Op, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit code %d: %s", e.Op, e.ExitCode, msg)
}

// WrapCommandError tags a command failure with an error kind so that both
// errors.Is(err, kind) and errors.As(err, *CommandError) hold.
func WrapCommandError(kind error, cmdErr *CommandError) error {
	return fmt.Errorf("%w: %w", kind, cmdErr)
}
