// Package runner spawns the external analysis tool against a workspace file.
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

var (
	// ErrSpawnFailed means the tool could not be started at all.
	ErrSpawnFailed = errors.New("scanner spawn failed")
	// ErrTimedOut means the tool exceeded its deadline and was killed.
	ErrTimedOut = errors.New("scanner timed out")
)

// Output is what a finished tool run produced. A non-zero ExitCode is not an
// error at this level.
type Output struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// ArgsFunc builds the argument vector for one run. path is the only variable
// input and must end up as a single argument.
type ArgsFunc func(path string) []string

// Exec runs the tool as a direct child process, never through a shell.
type Exec struct {
	log       *slog.Logger
	binary    string
	args      ArgsFunc
	timeout   time.Duration
	waitDelay time.Duration
}

func NewExec(log *slog.Logger, binary string, args ArgsFunc, timeout time.Duration) *Exec {
	return &Exec{
		log:       log,
		binary:    binary,
		args:      args,
		timeout:   timeout,
		waitDelay: 2 * time.Second,
	}
}

// Invoke runs the tool against path and waits for it to finish or time out.
func (e *Exec) Invoke(ctx context.Context, path string) (Output, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	//nolint:gosec // G204: binary comes from configuration, path is system generated
	cmd := exec.CommandContext(execCtx, e.binary, e.args(path)...)
	cmd.Env = toolEnv()
	setProcessGroup(cmd)
	cmd.WaitDelay = e.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return Output{}, fmt.Errorf("scanner interrupted: %w", ctx.Err())
		}
		return Output{}, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, e.binary, err)
	}
	e.log.Debug("scanner started", "binary", e.binary, "pid", cmd.Process.Pid)

	err := cmd.Wait()
	out := Output{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if execCtx.Err() != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return out, fmt.Errorf("%w after %v", ErrTimedOut, e.timeout)
		}
		return out, fmt.Errorf("scanner interrupted: %w", ctx.Err())
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, fmt.Errorf("wait for scanner: %w", err)
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}

// Probe reports whether the configured binary can be resolved.
func (e *Exec) Probe(_ context.Context) error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}
	return nil
}

// toolEnv passes through only what interpreters need to start.
func toolEnv() []string {
	env := []string{"LANG=C.UTF-8"}
	for _, key := range []string{"PATH", "HOME", "VIRTUAL_ENV"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}
