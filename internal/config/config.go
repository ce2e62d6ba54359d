// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MINDFIELDS_TRAINER_OUTPUT.
const EnvPrefix = "MINDFIELDS"

// DefaultLabels are the entity labels the mindfields_ner dataset is annotated with.
var DefaultLabels = []string{
	"ORGANISM",
	"ACTIVITY",
	"CONCENTRATION",
	"CONCENTRATION_TYPE",
	"ACTIVITY_MODULATION",
}

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Trainer  TrainerConfig  `mapstructure:"trainer" yaml:"trainer"`
	Runs     RunsConfig     `mapstructure:"runs" yaml:"runs"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Corpus   CorpusConfig   `mapstructure:"corpus" yaml:"corpus"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the console color of each log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// TrainerConfig describes the external batch-train invocation.
// Every value except Executable, ExecutableArgs and GracePeriod ends up on the
// recipe's command line verbatim.
type TrainerConfig struct {
	Executable     string        `mapstructure:"executable" yaml:"executable"`
	ExecutableArgs []string      `mapstructure:"executable_args" yaml:"executable_args"`
	Recipe         string        `mapstructure:"recipe" yaml:"recipe"`
	Dataset        string        `mapstructure:"dataset" yaml:"dataset"`
	BaseModel      string        `mapstructure:"base_model" yaml:"base_model"`
	Output         string        `mapstructure:"output" yaml:"output"`
	EvalSplit      float64       `mapstructure:"eval_split" yaml:"eval_split"`
	Labels         []string      `mapstructure:"labels" yaml:"labels"`
	NIter          int           `mapstructure:"n_iter" yaml:"n_iter"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`
	Dropout        float64       `mapstructure:"dropout" yaml:"dropout"`
	EvalID         string        `mapstructure:"eval_id" yaml:"eval_id"`
	NoMissing      bool          `mapstructure:"no_missing" yaml:"no_missing"`
	GracePeriod    time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
}

// RunsConfig controls run history and output capture.
type RunsConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir"`
	CaptureOutput bool   `mapstructure:"capture_output" yaml:"capture_output"`
	Record        bool   `mapstructure:"record" yaml:"record"`
}

// DatabaseConfig holds the optional PostgreSQL connection used for run history.
// When URL is empty the file-backed history under Runs.Dir is used.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// CorpusConfig configures the UniProt corpus builder.
type CorpusConfig struct {
	Input            string        `mapstructure:"input" yaml:"input"`
	Output           string        `mapstructure:"output" yaml:"output"`
	MaxSize          int           `mapstructure:"max_size" yaml:"max_size"`
	MaxLength        int           `mapstructure:"max_length" yaml:"max_length"`
	BufferSize       int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	Workers          int           `mapstructure:"workers" yaml:"workers"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers the default value of every known key.
// Keys without a default are invisible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mindfields")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Trainer --
	v.SetDefault("trainer.executable", "prodigy")
	v.SetDefault("trainer.executable_args", []string{})
	v.SetDefault("trainer.recipe", "ner.batch-train")
	v.SetDefault("trainer.dataset", "mindfields_ner")
	v.SetDefault("trainer.base_model", "en_core_web_sm")
	v.SetDefault("trainer.output", "./model")
	v.SetDefault("trainer.eval_split", 0.5)
	v.SetDefault("trainer.labels", DefaultLabels)
	v.SetDefault("trainer.n_iter", 0)
	v.SetDefault("trainer.batch_size", 0)
	v.SetDefault("trainer.dropout", 0.0)
	v.SetDefault("trainer.eval_id", "")
	v.SetDefault("trainer.no_missing", false)
	v.SetDefault("trainer.grace_period", "10s")

	// -- Runs --
	v.SetDefault("runs.dir", "~/.mindfields/runs")
	v.SetDefault("runs.capture_output", true)
	v.SetDefault("runs.record", true)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", "5s")

	// -- Corpus --
	v.SetDefault("corpus.input", "data/uniprot_sprot.xml")
	v.SetDefault("corpus.output", "raw_corpus.jsonl")
	v.SetDefault("corpus.max_size", 1000)
	v.SetDefault("corpus.max_length", 100)
	v.SetDefault("corpus.buffer_size", 10_000_000)
	v.SetDefault("corpus.workers", 4)
	v.SetDefault("corpus.progress_interval", "2s")
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// The conventional DATABASE_URL is honoured as well as the prefixed key.
	if err := v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("error binding database.url: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading "~" in the paths mindfields itself opens.
// Trainer values are left alone; they belong to the external recipe.
func (c *Config) ExpandPaths() error {
	paths := []*string{&c.Logger.LogFile, &c.Runs.Dir, &c.Corpus.Input, &c.Corpus.Output}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger configuration invalid: %w", err)
	}
	if err := c.Trainer.Validate(); err != nil {
		return fmt.Errorf("trainer configuration invalid: %w", err)
	}
	if c.Runs.CaptureOutput && c.Runs.Dir == "" {
		return errors.New("runs.dir is required when runs.capture_output is enabled")
	}
	if c.Database.MaxConns < 0 {
		return errors.New("database.max_conns must not be negative")
	}
	if err := c.Corpus.Validate(); err != nil {
		return fmt.Errorf("corpus configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the logger settings.
func (l *LoggerConfig) Validate() error {
	switch strings.ToLower(l.Format) {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("format must be 'console' or 'json', got %q", l.Format)
	}
}

// Validate only checks what is needed to start a process at all.
// Dataset, model, split and output problems are reported by the recipe itself.
func (t *TrainerConfig) Validate() error {
	if strings.TrimSpace(t.Executable) == "" {
		return errors.New("executable must not be empty")
	}
	if strings.TrimSpace(t.Recipe) == "" {
		return errors.New("recipe must not be empty")
	}
	if t.GracePeriod < 0 {
		return errors.New("grace_period must not be negative")
	}
	return nil
}

// Validate checks the corpus builder settings.
func (c *CorpusConfig) Validate() error {
	if c.MaxSize < 0 {
		return errors.New("max_size must not be negative (0 means unlimited)")
	}
	if c.MaxLength <= 0 {
		return errors.New("max_length must be a positive integer")
	}
	if c.BufferSize < 4096 {
		return errors.New("buffer_size must be at least 4096 bytes")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be a positive integer")
	}
	if c.ProgressInterval <= 0 {
		return errors.New("progress_interval must be a positive duration")
	}
	return nil
}
