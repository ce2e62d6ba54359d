// File: cmd/mindfields/main.go
/*
Copyright © 2025 Kyle McAllister (xkilldash9x@proton.me)
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/mindfields/cmd"
	"github.com/xkilldash9x/mindfields/internal/observability"
	"github.com/xkilldash9x/mindfields/internal/trainer"
)

const panicLogFile = "panic.log"

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
	// Allows replacing the command tree in tests.
	execute = cmd.Execute
)

// main is the entry point of the application.
func main() {
	// The sentinel: a crash leaves panic.log behind instead of a lost stack trace.
	defer handlePanic()
	osExit(run(os.Args[1:]))
}

// run executes the command line and returns the process exit code. A training
// run exits with the recipe's own code.
func run(args []string) int {
	// SIGINT and SIGTERM cancel the context; the recipe gets an interrupt and a grace period.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := execute(ctx, args)
	observability.Sync()
	return trainer.ExitCode(err)
}

// handlePanic records an unrecovered panic and exits with status 1.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(1)
		return
	}

	fmt.Fprintf(os.Stderr, "mindfields crashed: %v\nDetails logged to %s\n", r, panicLogFile)
	osExit(1)
}
