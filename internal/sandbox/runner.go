// Package sandbox executes verified converter plugins as isolated child
// processes. Containment is application-layer and best-effort: a stripped
// environment, a pinned working directory, a wall-clock deadline with
// process-group-wide termination, and capped output capture. It is not an
// OS-level sandbox.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout bounds plugin execution when the caller does not set one.
const DefaultTimeout = 30 * time.Second

// DefaultOutputCap is the per-stream capture ceiling. Output beyond the
// cap is discarded and the result is flagged truncated; stdout and stderr
// are capped independently.
const DefaultOutputCap = 1024 * 1024

// DefaultEnvAllowlist lists the only environment variables a plugin
// inherits. Credentials and API keys present in the parent environment
// never reach the child.
var DefaultEnvAllowlist = []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "SYSTEMROOT"}

// Result captures the outcome of one plugin execution. The runner does not
// interpret plugin-specific exit codes; that is the caller's concern.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Truncated bool
	TimedOut  bool
}

// Runner launches plugin processes under the configured restrictions.
type Runner struct {
	workDir   string
	envAllow  []string
	outputCap int64
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithEnvAllowlist overrides the environment variable allow-list.
func WithEnvAllowlist(names []string) Option {
	return func(r *Runner) {
		r.envAllow = names
	}
}

// WithOutputCap overrides the per-stream capture ceiling.
func WithOutputCap(limit int64) Option {
	return func(r *Runner) {
		r.outputCap = limit
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner whose children run with workDir as their
// working directory.
func NewRunner(workDir string, opts ...Option) *Runner {
	r := &Runner{
		workDir:   workDir,
		envAllow:  DefaultEnvAllowlist,
		outputCap: DefaultOutputCap,
		logger:    slog.Default().With("component", "sandbox.runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the plugin at exePath with args, enforcing the wall-clock
// timeout. On expiry the whole process group is killed so a plugin that
// forked cannot leave descendants running past the deadline. Run blocks
// the calling goroutine for the duration of the child.
func (r *Runner) Run(ctx context.Context, exePath string, args []string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newCappedBuffer(r.outputCap)
	stderr := newCappedBuffer(r.outputCap)

	cmd := exec.Command(exePath, args...)
	cmd.Dir = r.workDir
	cmd.Env = r.childEnv()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	handle := newHandle(cmd)

	start := time.Now()
	if err := handle.Start(); err != nil {
		return nil, fmt.Errorf("start plugin %s: %w", exePath, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- handle.Wait()
	}()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
		if err := handle.KillTree(); err != nil {
			r.logger.Warn("failed to kill plugin process tree", "plugin", exePath, "error", err)
		}
		// Reap the child; KillTree makes this return promptly.
		waitErr = <-done
	}

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		TimedOut:  timedOut,
	}

	switch {
	case waitErr == nil:
		result.ExitCode = 0
	case timedOut:
		result.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("wait for plugin %s: %w", exePath, waitErr)
		}
	}

	if result.Truncated {
		r.logger.Warn("plugin output truncated", "plugin", exePath, "cap_bytes", r.outputCap)
	}

	return result, nil
}

// childEnv builds the minimal environment from the allow-list.
func (r *Runner) childEnv() []string {
	env := make([]string, 0, len(r.envAllow))
	for _, name := range r.envAllow {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}
