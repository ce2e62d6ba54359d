package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mindfields/api/schemas"
	"github.com/xkilldash9x/mindfields/internal/observability"
	"github.com/xkilldash9x/mindfields/internal/runlog"
	"github.com/xkilldash9x/mindfields/internal/trainer"
)

func newRunsCmd(deps dependencies) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the history of training runs",
	}
	runsCmd.AddCommand(newRunsListCmd(deps.openStore))
	runsCmd.AddCommand(newRunsShowCmd(deps.openStore))
	runsCmd.AddCommand(newRunsLogsCmd(deps.openStore))
	return runsCmd
}

// withStore opens the run history for the duration of fn.
func withStore(ctx context.Context, open storeOpener, fn func(s runReader) error) error {
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	s, err := open(ctx, cfg, observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer s.Close()
	return fn(s)
}

// runReader is the read side of store.RunStore.
type runReader interface {
	List(ctx context.Context, limit int) ([]schemas.TrainingRun, error)
	Get(ctx context.Context, id uuid.UUID) (*schemas.TrainingRun, error)
}

func newRunsListCmd(open storeOpener) *cobra.Command {
	var limit int
	var asJSON bool

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List training runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, open, func(s runReader) error {
				runs, err := s.List(ctx, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeRunsJSON(cmd.OutOrStdout(), runs)
				}
				return writeRunsTable(cmd.OutOrStdout(), runs)
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show, 0 for all")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per line")
	return listCmd
}

func newRunsShowCmd(open storeOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a training run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			return withStore(ctx, open, func(s runReader) error {
				run, err := s.Get(ctx, id)
				if err != nil {
					return err
				}
				return writeRun(cmd.OutOrStdout(), run)
			})
		},
	}
}

func newRunsLogsCmd(open storeOpener) *cobra.Command {
	var follow bool

	logsCmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print the captured output of a training run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			path := runlog.Path(cfg.Runs.Dir, id)
			// The history may not know a run that is still going; fall back to the conventional path.
			lookupErr := withStore(ctx, open, func(s runReader) error {
				run, err := s.Get(ctx, id)
				if err != nil {
					return err
				}
				if run.LogPath == "" {
					return fmt.Errorf("%w: %s", runlog.ErrNoLog, id)
				}
				path = run.LogPath
				return nil
			})
			if lookupErr != nil {
				observability.GetLogger().Debug("Using the default run log location", zap.Error(lookupErr), zap.String("path", path))
			}

			if follow {
				return runlog.Follow(ctx, path, cmd.OutOrStdout())
			}
			return runlog.Copy(path, cmd.OutOrStdout())
		},
	}
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new output until interrupted")
	return logsCmd
}

func writeRunsTable(w io.Writer, runs []schemas.TrainingRun) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tEXIT\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Duration().Round(time.Second), r.ExitCode, r.Output)
	}
	return tw.Flush()
}

func writeRunsJSON(w io.Writer, runs []schemas.TrainingRun) error {
	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	for i := range runs {
		if err := enc.Encode(&runs[i]); err != nil {
			return fmt.Errorf("failed to encode run %s: %w", runs[i].ID, err)
		}
	}
	return nil
}

func writeRun(w io.Writer, r *schemas.TrainingRun) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Command:\t%s\n", trainer.Quote(append([]string{r.Executable}, r.Args...)))
	fmt.Fprintf(tw, "Started:\t%s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(tw, "Finished:\t%s\n", r.FinishedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration:\t%s\n", r.Duration().Round(time.Millisecond))
	fmt.Fprintf(tw, "Exit code:\t%d\n", r.ExitCode)
	fmt.Fprintf(tw, "Model output:\t%s\n", r.Output)
	if r.LogPath != "" {
		fmt.Fprintf(tw, "Log:\t%s\n", r.LogPath)
	}
	if r.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
	}
	return tw.Flush()
}
