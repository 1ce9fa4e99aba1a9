// Package docker runs the analysis tool inside a throwaway container.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/ASK1E/SASTRA/internal/runner"
)

const artifactDir = "/scan"

// Sandbox implements the same contract as runner.Exec with the tool running
// in a container built from image.
type Sandbox struct {
	log     *slog.Logger
	cli     API
	image   string
	args    runner.ArgsFunc
	timeout time.Duration
}

func NewSandbox(log *slog.Logger, cli API, image string, args runner.ArgsFunc, timeout time.Duration) *Sandbox {
	return &Sandbox{log: log, cli: cli, image: image, args: args, timeout: timeout}
}

// Invoke runs the tool on the file at path. Failing to reach the daemon or to
// create the container counts as a spawn failure.
func (s *Sandbox) Invoke(ctx context.Context, path string) (runner.Output, error) {
	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	target := artifactDir + "/" + filepath.Base(path)
	resp, err := s.cli.ContainerCreate(
		execCtx,
		&container.Config{
			Image:           s.image,
			Cmd:             s.args(target),
			User:            fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
			WorkingDir:      artifactDir,
			NetworkDisabled: true,
		},
		SandboxLimits(path, target),
		nil,
		nil,
		"",
	)
	if err != nil {
		if ctx.Err() != nil {
			return runner.Output{}, fmt.Errorf("scanner interrupted: %w", ctx.Err())
		}
		return runner.Output{}, fmt.Errorf("%w: create container from %s: %w", runner.ErrSpawnFailed, s.image, err)
	}
	defer s.remove(resp.ID)

	start := time.Now()
	if err := s.cli.ContainerStart(execCtx, resp.ID, container.StartOptions{}); err != nil {
		return runner.Output{}, fmt.Errorf("%w: start container: %w", runner.ErrSpawnFailed, err)
	}

	statusCh, errCh := s.cli.ContainerWait(execCtx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return runner.Output{}, fmt.Errorf("wait for container: %s", status.Error.Message)
		}
		exitCode = int(status.StatusCode)
	case err := <-errCh:
		if execCtx.Err() != nil {
			s.kill(resp.ID)
			if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return runner.Output{Duration: time.Since(start)}, fmt.Errorf("%w after %v", runner.ErrTimedOut, s.timeout)
			}
			return runner.Output{}, fmt.Errorf("scanner interrupted: %w", ctx.Err())
		}
		return runner.Output{}, fmt.Errorf("wait for container: %w", err)
	}

	out := runner.Output{ExitCode: exitCode, Duration: time.Since(start)}
	logs, err := s.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return out, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return out, fmt.Errorf("demux container logs: %w", err)
	}
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	return out, nil
}

// Probe checks that the daemon answers.
func (s *Sandbox) Probe(ctx context.Context) error {
	if _, err := s.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: docker daemon: %w", runner.ErrSpawnFailed, err)
	}
	return nil
}

func (s *Sandbox) kill(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.cli.ContainerKill(ctx, id, "SIGKILL"); err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
		s.log.Warn("kill scanner container", "container", id, "err", err)
	}
}

func (s *Sandbox) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		s.log.Warn("remove scanner container", "container", id, "err", err)
	}
}
