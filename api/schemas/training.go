package schemas

import (
	"time"

	"github.com/google/uuid"
)

// TrainingRun records one invocation of the external batch-train recipe.
type TrainingRun struct {
	ID         uuid.UUID `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Executable string    `json:"executable"`
	Args       []string  `json:"args"`
	ExitCode   int       `json:"exit_code"`
	// Output is the model directory handed to the recipe.
	Output  string `json:"output"`
	LogPath string `json:"log_path,omitempty"`
	// Error is set when the process could not be started at all.
	Error string `json:"error,omitempty"`
}

// Duration returns the wall time of the run.
func (r TrainingRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the recipe exited cleanly.
func (r TrainingRun) Succeeded() bool {
	return r.Error == "" && r.ExitCode == 0
}
