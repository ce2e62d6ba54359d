// Package runlog stores the captured console output of training runs.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hpcloud/tail"
)

// ErrNoLog is returned when a run has no captured output.
var ErrNoLog = errors.New("no captured output for run")

// Path returns where the output of run id is stored under dir.
func Path(dir string, id uuid.UUID) string {
	return filepath.Join(dir, id.String()+".log")
}

// Create opens a fresh log file for run id, creating dir as needed.
func Create(dir string, id uuid.UUID) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	f, err := os.OpenFile(Path(dir, id), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}
	return f, nil
}

// Copy writes a finished log to w.
func Copy(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoLog, path)
		}
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// Follow writes the log from the beginning and keeps streaming appended lines
// until ctx is done. The file must already exist.
func Follow(ctx context.Context, path string, w io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoLog, path)
		}
		return err
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    false,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail run log: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			// Stop returns the tailer's own error, which is nil on a clean stop.
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read run log: %w", line.Err)
			}
			if _, err := fmt.Fprintln(w, line.Text); err != nil {
				return err
			}
		}
	}
}
