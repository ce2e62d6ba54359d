package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/mindfields/api/schemas"
	"github.com/xkilldash9x/mindfields/internal/runlog"
	"github.com/xkilldash9x/mindfields/internal/trainer"
)

func TestRootCommand_RunsTheDefaultRecipe(t *testing.T) {
	h := newTestHarness(t)
	h.runner.output = "Loaded model en_core_web_sm\n"

	var recorded *schemas.TrainingRun
	h.store.On("Record", mock.Anything, mock.AnythingOfType("*schemas.TrainingRun")).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*schemas.TrainingRun) }).
		Return(nil).Once()
	h.store.On("Close").Return().Once()

	_, _, err := h.execute(context.Background())
	require.NoError(t, err)

	calls := h.runner.calls()
	require.Len(t, calls, 1)
	if diff := cmp.Diff(defaultArgv, calls[0].Command()); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, recorded)
	assert.Equal(t, "prodigy", recorded.Executable)
	assert.Equal(t, defaultArgv[1:], recorded.Args)
	assert.Equal(t, "./model", recorded.Output)
	assert.Zero(t, recorded.ExitCode)
	assert.Empty(t, recorded.Error)
	assert.Equal(t, runlog.Path(h.runsDir, recorded.ID), recorded.LogPath)

	captured, err := os.ReadFile(recorded.LogPath)
	require.NoError(t, err)
	assert.Equal(t, "Loaded model en_core_web_sm\n", string(captured))
	h.store.AssertExpectations(t)
}

func TestTrainCmd_FlagsOverrideConfig(t *testing.T) {
	h := newTestHarness(t)
	h.store.On("Record", mock.Anything, mock.Anything).Return(nil)
	h.store.On("Close").Return()

	_, _, err := h.execute(context.Background(),
		"train",
		"--eval-split", "0.2",
		"--label", "GENE,PROTEIN",
		"--n-iter", "20",
		"-o", "/tmp/model",
		"--no-missing",
		"--", "--unsegmented",
	)
	require.NoError(t, err)

	calls := h.runner.calls()
	require.Len(t, calls, 1)
	want := []string{
		"prodigy", "ner.batch-train", "mindfields_ner", "en_core_web_sm",
		"--output", "/tmp/model",
		"--eval-split", "0.2",
		"--label", "GENE, PROTEIN",
		"--n-iter", "20",
		"--no-missing",
		"--unsegmented",
	}
	assert.Empty(t, cmp.Diff(want, calls[0].Command()))
}

func TestTrainCmd_EnvironmentAndConfigFile(t *testing.T) {
	h := newTestHarness(t)
	h.store.On("Record", mock.Anything, mock.Anything).Return(nil)
	h.store.On("Close").Return()

	cfgPath := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
trainer:
  executable: python
  executable_args: ["-m", "prodigy"]
  base_model: en_core_sci_sm
`), 0o644))
	t.Setenv("MINDFIELDS_TRAINER_DATASET", "other_ner")

	_, _, err := h.execute(context.Background(), "--config", cfgPath, "train")
	require.NoError(t, err)

	calls := h.runner.calls()
	require.Len(t, calls, 1)
	argv := calls[0].Command()
	assert.Equal(t, []string{"python", "-m", "prodigy", "ner.batch-train", "other_ner", "en_core_sci_sm"}, argv[:6])
}

func TestTrainCmd_MissingConfigFile(t *testing.T) {
	h := newTestHarness(t)

	_, _, err := h.execute(context.Background(), "--config", filepath.Join(t.TempDir(), "absent.yaml"), "train")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
	assert.Empty(t, h.runner.calls())
}

func TestTrainCmd_DryRun(t *testing.T) {
	h := newTestHarness(t)

	stdout, _, err := h.execute(context.Background(), "train", "--dry-run", "--", "--extra", "two words")
	require.NoError(t, err)
	assert.Equal(t,
		"prodigy ner.batch-train mindfields_ner en_core_web_sm --output ./model --eval-split 0.5 "+
			"--label 'ORGANISM, ACTIVITY, CONCENTRATION, CONCENTRATION_TYPE, ACTIVITY_MODULATION' --extra 'two words'\n",
		stdout)
	assert.Empty(t, h.runner.calls())
	assert.Zero(t, h.opened)
}

func TestTrainCmd_RejectsArgumentsBeforeDash(t *testing.T) {
	h := newTestHarness(t)

	_, _, err := h.execute(context.Background(), "train", "mindfields_ner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass recipe arguments after --")
	assert.Empty(t, h.runner.calls())
}

func TestTrainCmd_PropagatesTheExitCode(t *testing.T) {
	h := newTestHarness(t)
	h.runner.code = 3
	h.runner.err = &trainer.ExitError{Executable: "prodigy", Code: 3}

	var recorded *schemas.TrainingRun
	h.store.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*schemas.TrainingRun) }).
		Return(nil)
	h.store.On("Close").Return()

	_, _, err := h.execute(context.Background(), "train")
	require.Error(t, err)
	assert.Equal(t, 3, trainer.ExitCode(err))

	require.NotNil(t, recorded)
	assert.Equal(t, 3, recorded.ExitCode)
	assert.Empty(t, recorded.Error, "a non-zero exit is not a local error")
}

func TestTrainCmd_StartFailureIsRecorded(t *testing.T) {
	h := newTestHarness(t)
	h.runner.code = trainer.ExitNotFound
	h.runner.err = &trainer.StartError{Executable: "prodigy", Code: trainer.ExitNotFound, Err: os.ErrNotExist}

	var recorded *schemas.TrainingRun
	h.store.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { recorded = args.Get(1).(*schemas.TrainingRun) }).
		Return(nil)
	h.store.On("Close").Return()

	_, _, err := h.execute(context.Background(), "train")
	assert.Equal(t, trainer.ExitNotFound, trainer.ExitCode(err))
	require.NotNil(t, recorded)
	assert.Contains(t, recorded.Error, "failed to start prodigy")
}

func TestTrainCmd_RecordingFailuresKeepTheExitCode(t *testing.T) {
	t.Run("store cannot be opened", func(t *testing.T) {
		h := newTestHarness(t)
		h.openErr = errStoreDown

		_, _, err := h.execute(context.Background(), "train")
		assert.NoError(t, err)
		assert.Equal(t, 1, h.opened)
	})

	t.Run("record fails", func(t *testing.T) {
		h := newTestHarness(t)
		h.runner.code = 2
		h.runner.err = &trainer.ExitError{Executable: "prodigy", Code: 2}
		h.store.On("Record", mock.Anything, mock.Anything).Return(errStoreDown)
		h.store.On("Close").Return()

		_, _, err := h.execute(context.Background(), "train")
		assert.Equal(t, 2, trainer.ExitCode(err))
		h.store.AssertExpectations(t)
	})
}

func TestTrainCmd_NoRecord(t *testing.T) {
	h := newTestHarness(t)

	_, _, err := h.execute(context.Background(), "train", "--no-record")
	require.NoError(t, err)
	assert.Len(t, h.runner.calls(), 1)
	assert.Zero(t, h.opened)
}

func TestTrainCmd_InterruptedRunIsStillRecorded(t *testing.T) {
	h := newTestHarness(t)
	h.runner.code = trainer.ExitInterrupted
	h.runner.err = &trainer.ExitError{Executable: "prodigy", Code: trainer.ExitInterrupted}

	h.store.On("Record", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).Return(nil).Once()
	h.store.On("Close").Return()

	// SIGINT already cancelled the command context when the recipe returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := h.execute(ctx, "train")
	assert.Equal(t, trainer.ExitInterrupted, trainer.ExitCode(err))
	h.store.AssertExpectations(t)
}

func TestTrainCmd_GracePeriodReachesTheRunner(t *testing.T) {
	h := newTestHarness(t)
	h.store.On("Record", mock.Anything, mock.Anything).Return(nil)
	h.store.On("Close").Return()

	_, _, err := h.execute(context.Background(), "train", "--grace-period", "3s")
	require.NoError(t, err)
	require.NotNil(t, h.lastConf)
	assert.Equal(t, "3s", h.lastConf.Trainer.GracePeriod.String())
}
