package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/mindfields/api/schemas"
	"go.uber.org/zap"
)

// maxHistoryLine bounds a single JSONL record; a run with a huge argv is still far below it.
const maxHistoryLine = 1 << 20

// File is an append-only JSONL run history. Re-recording an id appends a
// newer record; readers keep the last record seen for each id.
type File struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

// NewFile creates a file-backed store. The file is created on first Record.
func NewFile(path string, logger *zap.Logger) *File {
	return &File{path: path, log: logger.Named("store")}
}

// Record appends run to the history file.
func (s *File) Record(_ context.Context, run *schemas.TrainingRun) error {
	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode training run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append training run: %w", err)
	}
	return f.Close()
}

// List returns runs newest first.
func (s *File) List(_ context.Context, limit int) ([]schemas.TrainingRun, error) {
	runs, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Get returns the latest record for id.
func (s *File) Get(_ context.Context, id uuid.UUID) (*schemas.TrainingRun, error) {
	runs, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].ID == id {
			return &runs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// Close is a no-op; the file is opened per operation.
func (s *File) Close() {}

func (s *File) load() ([]schemas.TrainingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	defer f.Close()

	index := make(map[uuid.UUID]int)
	var runs []schemas.TrainingRun

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxHistoryLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var run schemas.TrainingRun
		if err := json.Unmarshal(scanner.Bytes(), &run); err != nil {
			s.log.Warn("Skipping malformed run history line", zap.String("path", s.path), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if i, seen := index[run.ID]; seen {
			runs[i] = run
			continue
		}
		index[run.ID] = len(runs)
		runs = append(runs, run)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}
	return runs, nil
}
