// Package trainer builds and runs the external NER batch-train command.
//
// Nothing here interprets the recipe's arguments: the dataset, base model,
// split ratio and output directory are handed over verbatim and any problem
// with them is reported by the external tool.
package trainer

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/mindfields/internal/config"
)

// labelSeparator matches the label list format the recipe has always been given.
const labelSeparator = ", "

// Recipe is a fully resolved batch-train invocation.
type Recipe struct {
	Executable     string
	ExecutableArgs []string
	Name           string
	Dataset        string
	BaseModel      string
	Output         string
	EvalSplit      float64
	Labels         []string

	// Optional recipe flags, emitted only when set.
	NIter     int
	BatchSize int
	Dropout   float64
	EvalID    string
	NoMissing bool

	// Extra is appended verbatim after every other argument.
	Extra []string
}

// NewRecipe resolves a Recipe from configuration.
func NewRecipe(cfg config.TrainerConfig, extra ...string) Recipe {
	return Recipe{
		Executable:     cfg.Executable,
		ExecutableArgs: append([]string(nil), cfg.ExecutableArgs...),
		Name:           cfg.Recipe,
		Dataset:        cfg.Dataset,
		BaseModel:      cfg.BaseModel,
		Output:         cfg.Output,
		EvalSplit:      cfg.EvalSplit,
		Labels:         append([]string(nil), cfg.Labels...),
		NIter:          cfg.NIter,
		BatchSize:      cfg.BatchSize,
		Dropout:        cfg.Dropout,
		EvalID:         cfg.EvalID,
		NoMissing:      cfg.NoMissing,
		Extra:          append([]string(nil), extra...),
	}
}

// LabelList joins the labels the way the recipe's --label option expects.
// Surrounding whitespace is trimmed and empty labels are dropped, so values
// coming from comma-separated flags or env vars produce the same string.
func (r Recipe) LabelList() string {
	labels := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return strings.Join(labels, labelSeparator)
}

// Args returns the argument vector passed to the executable, in order:
// recipe, dataset, base model, --output, --eval-split, --label, optional
// flags, extra arguments.
func (r Recipe) Args() []string {
	args := append([]string(nil), r.ExecutableArgs...)
	args = append(args,
		r.Name,
		r.Dataset,
		r.BaseModel,
		"--output", r.Output,
		"--eval-split", formatFloat(r.EvalSplit),
	)
	if labels := r.LabelList(); labels != "" {
		args = append(args, "--label", labels)
	}

	if r.NIter > 0 {
		args = append(args, "--n-iter", strconv.Itoa(r.NIter))
	}
	if r.BatchSize > 0 {
		args = append(args, "--batch-size", strconv.Itoa(r.BatchSize))
	}
	if r.Dropout > 0 {
		args = append(args, "--dropout", formatFloat(r.Dropout))
	}
	if r.EvalID != "" {
		args = append(args, "--eval-id", r.EvalID)
	}
	if r.NoMissing {
		args = append(args, "--no-missing")
	}

	return append(args, r.Extra...)
}

// Command returns the complete argv including the executable.
func (r Recipe) Command() []string {
	return append([]string{r.Executable}, r.Args()...)
}

// String renders the command as a shell-safe line.
func (r Recipe) String() string {
	return Quote(r.Command())
}

// formatFloat uses the shortest representation that round-trips, so 0.5 stays "0.5".
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
