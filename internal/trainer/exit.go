package trainer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"
)

// Exit codes used when the recipe's own status is not available. They follow
// the conventions a POSIX shell uses for the same situations.
const (
	ExitFailure     = 1
	ExitNotRunnable = 126
	ExitNotFound    = 127
	exitSignalBase  = 128
	ExitInterrupted = exitSignalBase + 2
)

// ExitError reports that the recipe ran and finished with a non-zero status.
type ExitError struct {
	Executable string
	Code       int
	// Signal is set when the process was terminated by a signal.
	Signal string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("%s terminated by signal %s (exit status %d)", e.Executable, e.Signal, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d", e.Executable, e.Code)
}

// StartError reports that the recipe could not be started at all.
type StartError struct {
	Executable string
	Code       int
	Err        error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Executable, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var startErr *StartError
	if errors.As(err, &startErr) {
		return startErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	return ExitFailure
}

func startFailureCode(err error) int {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, exec.ErrDot):
		return ExitNotRunnable
	default:
		return ExitFailure
	}
}

// exitErrorFrom converts the os/exec error into an ExitError.
func exitErrorFrom(executable string, err *exec.ExitError) *ExitError {
	out := &ExitError{Executable: executable, Code: err.ExitCode()}
	if out.Code >= 0 {
		return out
	}
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		out.Code = exitSignalBase + int(ws.Signal())
		out.Signal = ws.Signal().String()
		return out
	}
	out.Code = ExitFailure
	return out
}
