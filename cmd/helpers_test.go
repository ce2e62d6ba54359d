package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mindfields/api/schemas"
	"github.com/xkilldash9x/mindfields/internal/config"
	"github.com/xkilldash9x/mindfields/internal/store"
	"github.com/xkilldash9x/mindfields/internal/trainer"
)

// defaultArgv is the command line the historical training script ran.
var defaultArgv = []string{
	"prodigy", "ner.batch-train", "mindfields_ner", "en_core_web_sm",
	"--output", "./model",
	"--eval-split", "0.5",
	"--label", "ORGANISM, ACTIVITY, CONCENTRATION, CONCENTRATION_TYPE, ACTIVITY_MODULATION",
}

// fakeRunner records the recipes it is asked to run.
type fakeRunner struct {
	mu      sync.Mutex
	recipes []trainer.Recipe
	output  string
	code    int
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, recipe trainer.Recipe, capture io.Writer) (*trainer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipes = append(f.recipes, recipe)
	if capture != nil && f.output != "" {
		_, _ = io.WriteString(capture, f.output)
	}
	start := time.Now()
	return &trainer.Result{StartedAt: start, FinishedAt: start.Add(time.Second), ExitCode: f.code}, f.err
}

func (f *fakeRunner) calls() []trainer.Recipe {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trainer.Recipe(nil), f.recipes...)
}

// mockRunStore is a testify mock of store.RunStore.
type mockRunStore struct {
	mock.Mock
}

func (m *mockRunStore) Record(ctx context.Context, run *schemas.TrainingRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRunStore) List(ctx context.Context, limit int) ([]schemas.TrainingRun, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]schemas.TrainingRun)
	return runs, args.Error(1)
}

func (m *mockRunStore) Get(ctx context.Context, id uuid.UUID) (*schemas.TrainingRun, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*schemas.TrainingRun)
	return run, args.Error(1)
}

func (m *mockRunStore) Close() {
	m.Called()
}

var _ store.RunStore = (*mockRunStore)(nil)

// testHarness wires a command tree to fakes.
type testHarness struct {
	runner   *fakeRunner
	store    *mockRunStore
	openErr  error
	opened   int
	runsDir  string
	lastConf *config.Config
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	// Keep the developer's mindfields.yaml and home directory out of the tests.
	t.Chdir(t.TempDir())
	h := &testHarness{runner: &fakeRunner{}, store: &mockRunStore{}, runsDir: t.TempDir()}
	t.Setenv("MINDFIELDS_RUNS_DIR", h.runsDir)
	t.Setenv("MINDFIELDS_LOGGER_LEVEL", "error")
	return h
}

func (h *testHarness) deps() dependencies {
	return dependencies{
		newRunner: func(logger *zap.Logger, cfg *config.Config) recipeRunner {
			h.lastConf = cfg
			return h.runner
		},
		openStore: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.RunStore, error) {
			h.opened++
			if h.openErr != nil {
				return nil, h.openErr
			}
			return h.store, nil
		},
	}
}

// execute runs args against a fresh command tree and returns stdout and stderr.
func (h *testHarness) execute(ctx context.Context, args ...string) (string, string, error) {
	root := newRootCommand(h.deps())
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

var errStoreDown = errors.New("store unavailable")
