package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mindfields/internal/config"
	"github.com/xkilldash9x/mindfields/internal/corpus"
	"github.com/xkilldash9x/mindfields/internal/observability"
)

func newCorpusCmd() *cobra.Command {
	corpusCmd := &cobra.Command{
		Use:   "corpus",
		Short: "Manage the raw annotation corpus",
	}
	corpusCmd.AddCommand(newCorpusBuildCmd())
	return corpusCmd
}

func newCorpusBuildCmd() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a raw JSONL corpus from a UniProt Swiss-Prot XML dump",
		Long: `Streams the UniProt entries of the input, keeps entries whose sequence is shorter
than --max-length and collects the sentences of their comments and citation titles
that mention "anti" or "inhibit". Inputs ending in .gz or .br are decompressed and
"-" reads stdin; an output ending in .gz is compressed. Interrupting the build
still writes the sentences collected so far.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runCorpusBuild(ctx, cfg.Corpus, observability.GetLogger())
		},
	}

	f := buildCmd.Flags()
	f.StringP("input", "i", "", "UniProt XML dump (default from config: data/uniprot_sprot.xml)")
	configFlag(f, "input", "corpus.input")
	f.StringP("output", "o", "", "JSONL file to write (default from config: raw_corpus.jsonl)")
	configFlag(f, "output", "corpus.output")
	f.Int("max-size", 0, "corpus maximum size, 0 for unlimited (default from config: 1000)")
	configFlag(f, "max-size", "corpus.max_size")
	f.Int("max-length", 0, "maximum sequence length (default from config: 100)")
	configFlag(f, "max-length", "corpus.max_length")
	f.Int("buffer-size", 0, "largest entry in bytes (default from config: 10000000)")
	configFlag(f, "buffer-size", "corpus.buffer_size")
	f.Int("workers", 0, "number of parsing goroutines")
	configFlag(f, "workers", "corpus.workers")

	return buildCmd
}

func runCorpusBuild(ctx context.Context, cfg config.CorpusConfig, logger *zap.Logger) error {
	in, err := corpus.OpenInput(cfg.Input)
	if err != nil {
		return err
	}
	defer in.Close()

	logger.Info("Building corpus",
		zap.String("input", cfg.Input),
		zap.String("output", cfg.Output),
		zap.Int("max_size", cfg.MaxSize),
		zap.Int("max_length", cfg.MaxLength))

	res, err := corpus.NewBuilder(corpus.OptionsFromConfig(cfg), logger).Build(ctx, in, in.Size)
	if err != nil {
		return fmt.Errorf("failed to build corpus from %s: %w", cfg.Input, err)
	}

	if err := corpus.WriteFile(cfg.Output, res.Entries); err != nil {
		return err
	}
	logger.Info("Corpus written", zap.String("path", cfg.Output), zap.Int("entries", len(res.Entries)))
	return nil
}
