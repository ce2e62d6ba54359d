package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mindfields/internal/config"
	"github.com/xkilldash9x/mindfields/internal/observability"
	"github.com/xkilldash9x/mindfields/internal/store"
	"github.com/xkilldash9x/mindfields/internal/trainer"
)

type contextKey string

const configKey contextKey = "config"

// configAnnotation on a flag names the configuration key it overrides.
const configAnnotation = "config_key"

const defaultConfigName = "mindfields"

// dependencies are the seams the commands use to reach the outside world.
type dependencies struct {
	newRunner func(logger *zap.Logger, cfg *config.Config) recipeRunner
	openStore storeOpener
}

func defaultDependencies() dependencies {
	return dependencies{
		newRunner: func(logger *zap.Logger, cfg *config.Config) recipeRunner {
			return trainer.NewRunner(logger, trainer.WithGracePeriod(cfg.Trainer.GracePeriod))
		},
		openStore: store.Open,
	}
}

// NewRootCommand builds a fresh command tree. The interactive shell builds one
// per line so flags never leak between commands.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDependencies())
}

func newRootCommand(deps dependencies) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "mindfields",
		Short: "Train the mindfields NER model and build its UniProt corpus.",
		Long: `Without a subcommand, mindfields runs

  prodigy ner.batch-train mindfields_ner en_core_web_sm --output ./model --eval-split 0.5 \
    --label "ORGANISM, ACTIVITY, CONCENTRATION, CONCENTRATION_TYPE, ACTIVITY_MODULATION"

and exits with prodigy's exit code. Every value can be changed in mindfields.yaml,
through MINDFIELDS_* environment variables or with the flags of "mindfields train".`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger)
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if err := bindFlags(cmd, v); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger)
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting mindfields",
				zap.String("version", Version),
				zap.String("command", cmd.CommandPath()),
				zap.String("config_file", v.ConfigFileUsed()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runTrain(cmd.Context(), cfg, observability.GetLogger(), deps, trainer.NewRecipe(cfg.Trainer), true)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./mindfields.yaml)")

	rootCmd.AddCommand(newTrainCmd(deps))
	rootCmd.AddCommand(newCorpusCmd())
	rootCmd.AddCommand(newRunsCmd(deps))
	rootCmd.AddCommand(newShellCmd())
	return rootCmd
}

// Execute runs the command line args and reports the error, if any. The caller
// maps the returned error to an exit code with trainer.ExitCode.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		reportError(err)
	}
	return err
}

// reportError logs failures the runner has not logged already.
func reportError(err error) {
	var exitErr *trainer.ExitError
	var startErr *trainer.StartError
	if errors.As(err, &exitErr) || errors.As(err, &startErr) {
		return
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Command aborted")
		return
	}
	if observability.Initialized() {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return
	}
	// Flag and argument errors happen before the logger exists.
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// initializeConfig points v at the config file and the environment.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	return nil
}

// bindFlags binds every annotated flag of the executing command to its key.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[configAnnotation]
		if !ok || len(keys) == 0 || bindErr != nil {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// configFlag marks an already defined flag as an override of key.
func configFlag(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, configAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("flag %q is not defined: %v", name, err))
	}
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if ctx == nil {
		return nil, errors.New("no command context")
	}
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
