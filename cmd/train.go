package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mindfields/api/schemas"
	"github.com/xkilldash9x/mindfields/internal/config"
	"github.com/xkilldash9x/mindfields/internal/observability"
	"github.com/xkilldash9x/mindfields/internal/runlog"
	"github.com/xkilldash9x/mindfields/internal/store"
	"github.com/xkilldash9x/mindfields/internal/trainer"
)

// recordTimeout bounds writing the run history after the recipe has exited.
const recordTimeout = 10 * time.Second

// recipeRunner is satisfied by *trainer.Runner.
type recipeRunner interface {
	Run(ctx context.Context, recipe trainer.Recipe, capture io.Writer) (*trainer.Result, error)
}

// storeOpener is satisfied by store.Open.
type storeOpener func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.RunStore, error)

func newTrainCmd(deps dependencies) *cobra.Command {
	var dryRun, noRecord bool

	trainCmd := &cobra.Command{
		Use:   "train [flags] [-- extra recipe arguments]",
		Short: "Run prodigy ner.batch-train on the mindfields_ner dataset",
		Long: `Runs the batch-train recipe with the configured arguments. Flags override the
configuration; anything after "--" is appended to the recipe's command line as is.
Nothing is validated locally: prodigy reports bad datasets, models or paths itself
and its exit code becomes the exit code of mindfields.`,
		Example: `  mindfields train
  mindfields train --eval-split 0.2 --n-iter 20
  mindfields train --dry-run -- --unsegmented`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && cmd.ArgsLenAtDash() != 0 {
				return fmt.Errorf("unexpected argument %q; pass recipe arguments after --", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			recipe := trainer.NewRecipe(cfg.Trainer, args...)
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), recipe.String())
				return nil
			}
			return runTrain(ctx, cfg, observability.GetLogger(), deps, recipe, !noRecord)
		},
	}

	f := trainCmd.Flags()
	f.String("executable", "", "training executable (default from config: prodigy)")
	configFlag(f, "executable", "trainer.executable")
	f.String("recipe", "", "recipe name (default from config: ner.batch-train)")
	configFlag(f, "recipe", "trainer.recipe")
	f.String("dataset", "", "annotated dataset to train from")
	configFlag(f, "dataset", "trainer.dataset")
	f.String("base-model", "", "spaCy model to start from")
	configFlag(f, "base-model", "trainer.base_model")
	f.StringP("output", "o", "", "directory the trained model is written to")
	configFlag(f, "output", "trainer.output")
	f.Float64("eval-split", 0, "share of examples held out for evaluation")
	configFlag(f, "eval-split", "trainer.eval_split")
	f.StringSlice("label", nil, "entity labels (repeatable or comma-separated)")
	configFlag(f, "label", "trainer.labels")
	f.Int("n-iter", 0, "number of training iterations")
	configFlag(f, "n-iter", "trainer.n_iter")
	f.Int("batch-size", 0, "training batch size")
	configFlag(f, "batch-size", "trainer.batch_size")
	f.Float64("dropout", 0, "dropout rate")
	configFlag(f, "dropout", "trainer.dropout")
	f.String("eval-id", "", "dataset used for evaluation instead of a split")
	configFlag(f, "eval-id", "trainer.eval_id")
	f.Bool("no-missing", false, "treat unannotated tokens as outside any entity")
	configFlag(f, "no-missing", "trainer.no_missing")
	f.Duration("grace-period", 0, "time the recipe gets to exit after an interrupt before it is killed")
	configFlag(f, "grace-period", "trainer.grace_period")

	f.BoolVar(&dryRun, "dry-run", false, "print the command line instead of running it")
	f.BoolVar(&noRecord, "no-record", false, "do not add this run to the run history")

	return trainCmd
}

// runTrain runs the recipe once, capturing its output and recording the run.
// The returned error carries the recipe's exit code (see trainer.ExitCode).
func runTrain(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps dependencies, recipe trainer.Recipe, record bool) error {
	argv := recipe.Command()
	run := &schemas.TrainingRun{
		ID:         uuid.New(),
		Executable: argv[0],
		Args:       argv[1:],
		Output:     recipe.Output,
	}
	logger = logger.With(zap.Stringer("run_id", run.ID))

	var capture io.Writer
	if cfg.Runs.CaptureOutput {
		f, err := runlog.Create(cfg.Runs.Dir, run.ID)
		if err != nil {
			logger.Warn("Running without output capture", zap.Error(err))
		} else {
			defer f.Close()
			capture = f
			run.LogPath = f.Name()
		}
	}

	res, runErr := deps.newRunner(logger, cfg).Run(ctx, recipe, capture)
	if res != nil {
		run.StartedAt = res.StartedAt
		run.FinishedAt = res.FinishedAt
		run.ExitCode = res.ExitCode
	}
	var exitErr *trainer.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		run.Error = runErr.Error()
	}

	if record && cfg.Runs.Record {
		recordRun(ctx, cfg, logger, deps.openStore, run)
	}
	return runErr
}

// recordRun stores run in the history. Failures are logged only; they never
// change the exit code of the training run.
func recordRun(ctx context.Context, cfg *config.Config, logger *zap.Logger, open storeOpener, run *schemas.TrainingRun) {
	// The run is recorded even when it was interrupted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	s, err := open(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Failed to open run history; run not recorded", zap.Error(err))
		return
	}
	defer s.Close()

	if err := s.Record(ctx, run); err != nil {
		logger.Warn("Failed to record training run", zap.Error(err))
		return
	}
	logger.Debug("Training run recorded", zap.Int("exit_code", run.ExitCode))
}
