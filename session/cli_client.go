package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/scone-policy-sessions/interfaces"
	"github.com/ruteri/scone-policy-sessions/runner"
)

const (
	// ReadSessionFile receives session content read from the store.
	ReadSessionFile = "tmp_read_session.yml"
	// RenderedSessionFile receives documents submitted for check and create.
	RenderedSessionFile = "tmp_rendered.yml"

	// DefaultCLIImage is the curated image containing the scone CLI.
	DefaultCLIImage = "registry.scontain.com:5050/sconecuratedimages/sconecli"

	containerWorkDir = "/root"
)

var _ interfaces.SessionService = (*CLIClient)(nil)

// CLIConfig configures how the scone CLI is invoked.
type CLIConfig struct {
	// WorkDir is the host working directory. Session files are exchanged through it.
	WorkDir string

	// Image runs the CLI in a container with WorkDir mounted at /root. When
	// empty the CLI is expected on the local PATH.
	Image string

	// HomeDir is the host home whose .docker, .cas and .scone directories are
	// mounted into the CLI container so that CAS identities persist.
	HomeDir string

	// Timeout bounds each CLI invocation. Zero means no bound.
	Timeout time.Duration
}

// CLIClient implements interfaces.SessionService on top of the scone CLI
// (scone session read|verify|check|create).
type CLIClient struct {
	cfg    CLIConfig
	runner runner.Runner
	log    *slog.Logger
}

func NewCLIClient(cfg CLIConfig, r runner.Runner, log *slog.Logger) *CLIClient {
	return &CLIClient{cfg: cfg, runner: r, log: log}
}

func (c *CLIClient) ReadSession(ctx context.Context, name string) (string, error) {
	res, err := c.scone(ctx, "read", name)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", interfaces.WrapCommandError(interfaces.ErrSessionNotFound, res.AsError("scone session read "+name))
	}
	if err := c.writeFile(ReadSessionFile, res.Stdout); err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (c *CLIClient) VerifySession(ctx context.Context, content string) (string, error) {
	if err := c.writeFile(ReadSessionFile, content); err != nil {
		return "", err
	}
	res, err := c.scone(ctx, "verify", ReadSessionFile)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", interfaces.WrapCommandError(interfaces.ErrSessionVerifyFailed, res.AsError("scone session verify"))
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (c *CLIClient) CheckDocument(ctx context.Context, document string) error {
	if err := c.writeFile(RenderedSessionFile, document); err != nil {
		return err
	}
	res, err := c.scone(ctx, "check", RenderedSessionFile)
	if err != nil {
		return err
	}
	if !res.Success() {
		return interfaces.WrapCommandError(interfaces.ErrTemplateInvalid, res.AsError("scone session check"))
	}
	return nil
}

func (c *CLIClient) CreateSession(ctx context.Context, document string) (string, error) {
	if err := c.writeFile(RenderedSessionFile, document); err != nil {
		return "", err
	}
	res, err := c.scone(ctx, "create", RenderedSessionFile)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", interfaces.WrapCommandError(interfaces.ErrSessionCreateFailed, res.AsError("scone session create"))
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (c *CLIClient) scone(ctx context.Context, op string, arg string) (runner.Result, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	res, err := c.runner.Run(ctx, c.command("session", op, arg))
	if err != nil {
		return runner.Result{}, fmt.Errorf("%w: scone session %s: %w", interfaces.ErrCommandNotRun, op, err)
	}
	c.log.Debug("scone session command",
		slog.String("op", op),
		slog.String("arg", arg),
		slog.Int("exit_code", res.ExitCode))
	return res, nil
}

func (c *CLIClient) command(args ...string) runner.Command {
	if c.cfg.Image == "" {
		return runner.Command{
			Args:    append([]string{"scone"}, args...),
			WorkDir: c.cfg.WorkDir,
		}
	}

	workDir, err := filepath.Abs(c.cfg.WorkDir)
	if err != nil {
		workDir = c.cfg.WorkDir
	}
	mounts := []runner.Mount{
		{Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
		{Source: workDir, Target: containerWorkDir},
	}
	if c.cfg.HomeDir != "" {
		for _, dir := range []string{".docker", ".cas", ".scone"} {
			source := filepath.Join(c.cfg.HomeDir, dir)
			// bind mounts require an existing source
			if err := os.MkdirAll(source, 0700); err != nil {
				c.log.Warn("Failed to create CLI home directory", slog.String("path", source), "err", err)
			}
			mounts = append(mounts, runner.Mount{
				Source: source,
				Target: filepath.Join(containerWorkDir, dir),
			})
		}
	}
	return runner.Command{
		Image:   c.cfg.Image,
		Args:    append([]string{"scone"}, args...),
		Mounts:  mounts,
		WorkDir: containerWorkDir,
	}
}

// writeFile stores session material for the CLI. Documents embed the OTP
// secret, hence the restrictive mode.
func (c *CLIClient) writeFile(name, content string) error {
	path := filepath.Join(c.cfg.WorkDir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
