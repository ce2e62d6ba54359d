package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CommandFunc creates the process for an invocation. It must return a command
// built with exec.CommandContext.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Result describes a finished (or failed to start) invocation.
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	PID        int
}

// Duration returns how long the process ran.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner executes recipes as child processes with inherited stdio.
type Runner struct {
	logger         *zap.Logger
	stdin          io.Reader
	stdout         io.Writer
	stderr         io.Writer
	gracePeriod    time.Duration
	commandContext CommandFunc
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStdio overrides the streams the child inherits.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdin, r.stdout, r.stderr = stdin, stdout, stderr
	}
}

// WithGracePeriod sets how long an interrupted child may take to exit before it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) { r.gracePeriod = d }
}

// WithCommandFunc replaces exec.CommandContext, mainly for tests.
func WithCommandFunc(fn CommandFunc) Option {
	return func(r *Runner) { r.commandContext = fn }
}

// NewRunner creates a Runner wired to the current process's stdio.
func NewRunner(logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:         logger.Named("trainer"),
		stdin:          os.Stdin,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		gracePeriod:    10 * time.Second,
		commandContext: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the recipe and waits for it. Output is passed through unchanged;
// when capture is non-nil both streams are copied into it as well.
//
// A non-zero exit is returned as *ExitError and a failure to start as
// *StartError; the returned Result is always non-nil.
func (r *Runner) Run(ctx context.Context, recipe Recipe, capture io.Writer) (*Result, error) {
	argv := recipe.Command()
	cmd := r.commandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	logger := r.logger.With(zap.String("command", Quote(argv)))
	if capture != nil {
		lw := &logWriter{w: capture, logger: logger}
		cmd.Stdout = io.MultiWriter(r.stdout, lw)
		cmd.Stderr = io.MultiWriter(r.stderr, lw)
	}
	// Ask politely first; WaitDelay kills the child if it ignores us.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.gracePeriod

	res := &Result{StartedAt: time.Now()}

	if err := cmd.Start(); err != nil {
		res.FinishedAt = time.Now()
		res.ExitCode = startFailureCode(err)
		logger.Error("Failed to start training recipe", zap.Error(err), zap.Int("exit_code", res.ExitCode))
		return res, &StartError{Executable: argv[0], Code: res.ExitCode, Err: err}
	}
	res.PID = cmd.Process.Pid
	logger.Info("Training recipe started", zap.Int("pid", res.PID))

	err := cmd.Wait()
	res.FinishedAt = time.Now()
	fields := []zap.Field{zap.Duration("duration", res.Duration())}

	var execErr *exec.ExitError
	switch {
	case err == nil:
		logger.Info("Training recipe finished", fields...)
		return res, nil

	case errors.As(err, &execErr):
		exitErr := exitErrorFrom(argv[0], execErr)
		res.ExitCode = exitErr.Code
		logger.Warn("Training recipe exited with a non-zero status",
			append(fields, zap.Int("exit_code", exitErr.Code), zap.String("signal", exitErr.Signal))...)
		return res, exitErr

	case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success():
		// The recipe succeeded but a descendant kept its output open past the grace period.
		logger.Warn("Training recipe finished but its output streams stayed open", fields...)
		return res, nil

	default:
		// The recipe exited 0 but Wait still failed: either ctx was cancelled
		// (context.Canceled) or passing its output through to our own streams failed.
		res.ExitCode = ExitCode(err)
		logger.Error("Waiting for training recipe failed", append(fields, zap.Error(err))...)
		return res, fmt.Errorf("waiting for %s: %w", argv[0], err)
	}
}

// logWriter tees output into the run log. The first write error is logged and
// later output is dropped, so a broken run log never affects the recipe.
type logWriter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *zap.Logger
	failed bool
}

func (l *logWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failed {
		return len(p), nil
	}
	if _, err := l.w.Write(p); err != nil {
		l.failed = true
		l.logger.Warn("Failed to write run log; output is no longer captured", zap.Error(err))
	}
	return len(p), nil
}
