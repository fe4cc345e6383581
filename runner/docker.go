package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrImageNotFound is returned when the requested image is neither present
// locally nor pullable.
var ErrImageNotFound = errors.New("image not found")

// DockerRunner runs each command in a fresh container (docker run --rm
// equivalent) through the Docker Engine API.
type DockerRunner struct {
	cli client.APIClient
	log *slog.Logger
}

// NewDockerRunner creates a DockerRunner with a Docker client from the environment.
func NewDockerRunner(log *slog.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewDockerRunnerFromClient(cli, log), nil
}

// NewDockerRunnerFromClient wraps an existing Docker client.
func NewDockerRunnerFromClient(cli client.APIClient, log *slog.Logger) *DockerRunner {
	return &DockerRunner{cli: cli, log: log}
}

func (r *DockerRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Image == "" {
		return Result{}, errors.New("docker runner requires an image")
	}
	start := time.Now()

	cc := &container.Config{
		Image:      c.Image,
		Cmd:        c.Args,
		Env:        c.Env,
		WorkingDir: c.WorkDir,
	}
	hc := &container.HostConfig{
		Mounts: toDockerMounts(c.Mounts),
	}

	created, err := r.create(ctx, cc, hc)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		// ctx may already be cancelled; removal must still happen.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.cli.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true}); err != nil {
			r.log.Warn("Failed to remove container", slog.String("container", created.ID), "err", err)
		}
	}()

	waitCh, errCh := r.cli.ContainerWait(ctx, created.ID, container.WaitConditionNextExit)

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start container for %s: %w", c.Image, err)
	}

	var exitCode int
	select {
	case res := <-waitCh:
		if res.Error != nil {
			return Result{}, fmt.Errorf("wait for container %s: %s", created.ID, res.Error.Message)
		}
		exitCode = int(res.StatusCode)
	case err := <-errCh:
		return Result{}, fmt.Errorf("wait for container %s: %w", created.ID, err)
	}

	logs, err := r.cli.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{}, fmt.Errorf("container logs %s: %w", created.ID, err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return Result{}, fmt.Errorf("read container output %s: %w", created.ID, err)
	}

	r.log.Debug("Container finished",
		slog.String("command", c.String()),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", time.Since(start)))

	return Result{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// create pulls the image once if it is missing locally.
func (r *DockerRunner) create(ctx context.Context, cc *container.Config, hc *container.HostConfig) (container.CreateResponse, error) {
	created, err := r.cli.ContainerCreate(ctx, cc, hc, nil, nil, "")
	if err == nil {
		return created, nil
	}
	if !errdefs.IsNotFound(err) {
		return created, fmt.Errorf("create container for %s: %w", cc.Image, err)
	}

	if err := r.pullImage(ctx, cc.Image); err != nil {
		return created, fmt.Errorf("%w: %s: %w", ErrImageNotFound, cc.Image, err)
	}
	created, err = r.cli.ContainerCreate(ctx, cc, hc, nil, nil, "")
	if err != nil {
		return created, fmt.Errorf("create container for %s after pull: %w", cc.Image, err)
	}
	return created, nil
}

func (r *DockerRunner) pullImage(ctx context.Context, ref string) error {
	r.log.Info("Pulling image", slog.String("image", ref))
	resp, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer resp.Close()
	// the pull completes only once the progress stream is consumed
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	return nil
}

func toDockerMounts(mounts []Mount) []mount.Mount {
	out := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return out
}
