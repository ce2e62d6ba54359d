package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mindfields/internal/trainer"
)

const shellPrompt = "mindfields> "

// lineReader is the part of *readline.Instance the shell loop uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// commandFactory builds the command tree that executes one shell line.
type commandFactory func() *cobra.Command

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive mindfields prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          shellPrompt,
				HistoryFile:     historyFile(),
				AutoComplete:    newCompleter(NewRootCommand()),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			return runShell(cmd.Context(), rl, NewRootCommand, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func historyFile() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mindfields_history")
}

// runShell executes lines until exit, quit or EOF. A failing command is
// reported and the prompt continues.
func runShell(ctx context.Context, rl lineReader, newRoot commandFactory, stdout, stderr io.Writer) error {
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit", "quit":
			return nil
		case "shell":
			fmt.Fprintln(stderr, "Already in the mindfields shell.")
			continue
		}

		if err := executeLine(ctx, newRoot(), fields, stdout, stderr); err != nil {
			var exitErr *trainer.ExitError
			if errors.As(err, &exitErr) {
				fmt.Fprintf(stderr, "exit status %d\n", exitErr.Code)
				continue
			}
			fmt.Fprintln(stderr, "Error:", err)
		}
	}
}

// executeLine runs one command. An interrupt stops that command, not the shell.
func executeLine(ctx context.Context, root *cobra.Command, args []string, stdout, stderr io.Writer) (err error) {
	lineCtx, stop := signal.NotifyContext(context.WithoutCancel(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(lineCtx)
}

// newCompleter completes command and subcommand names.
func newCompleter(root *cobra.Command) readline.AutoCompleter {
	items := []readline.PrefixCompleterInterface{readline.PcItem("exit"), readline.PcItem("quit")}
	for _, c := range root.Commands() {
		if c.Hidden || c.Name() == "shell" {
			continue
		}
		items = append(items, completerItem(c))
	}
	return readline.NewPrefixCompleter(items...)
}

func completerItem(c *cobra.Command) readline.PrefixCompleterInterface {
	var children []readline.PrefixCompleterInterface
	for _, sub := range c.Commands() {
		if !sub.Hidden {
			children = append(children, completerItem(sub))
		}
	}
	return readline.PcItem(c.Name(), children...)
}

var _ lineReader = (*readline.Instance)(nil)

