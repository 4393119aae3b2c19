// Package config loads testfang settings from defaults, an optional
// .testfang.yaml, TESTFANG_ environment variables, and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidSize        = errors.New("prioritization size must not be negative")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
	ErrInvalidLogLevel    = errors.New("unknown log level")
	ErrInvalidCodec       = errors.New("unknown checkpoint codec")
	ErrEmptyAlgorithm     = errors.New("prioritization algorithm must be set")
	ErrInvalidIterations  = errors.New("reduction iterations must not be negative")
)

const (
	configName = ".testfang"
	envPrefix  = "TESTFANG"
	stateDir   = ".testfang"
)

// Config holds all testfang settings.
type Config struct {
	Prioritization PrioritizationConfig `mapstructure:"prioritization"`
	Reduction      ReductionConfig      `mapstructure:"reduction"`
	Store          StoreConfig          `mapstructure:"store"`
	Checkpoint     CheckpointConfig     `mapstructure:"checkpoint"`
	Log            LogConfig            `mapstructure:"log"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

// PrioritizationConfig holds run defaults.
type PrioritizationConfig struct {
	Algorithm string `mapstructure:"algorithm"`
	Size      int    `mapstructure:"size"`
	Seed      uint64 `mapstructure:"seed"`
}

// ReductionConfig holds reduction defaults.
type ReductionConfig struct {
	Iterations int    `mapstructure:"iterations"`
	OutputDir  string `mapstructure:"output_dir"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// CheckpointConfig locates saved selections.
type CheckpointConfig struct {
	Dir   string `mapstructure:"dir"`
	Codec string `mapstructure:"codec"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ObservabilityConfig controls telemetry export.
type ObservabilityConfig struct {
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string  `mapstructure:"otlp_headers"`
	OTLPInsecure   bool    `mapstructure:"otlp_insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	PrometheusAddr string  `mapstructure:"prometheus_addr"`
}

// FlagKeys maps command flag names to configuration keys for BindFlags.
var FlagKeys = map[string]string{
	"algorithm":      "prioritization.algorithm",
	"size":           "prioritization.size",
	"seed":           "prioritization.seed",
	"iterations":     "reduction.iterations",
	"output-dir":     "reduction.output_dir",
	"store":          "store.path",
	"checkpoint-dir": "checkpoint.dir",
	"log-level":      "log.level",
	"log-json":       "log.json",
}

// LoadConfig reads configuration. An explicit configPath must exist;
// otherwise .testfang.yaml is searched in the working directory and $HOME.
// Flags present in flags and named in FlagKeys override every other source.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Checkpoint.Dir = expandHome(cfg.Checkpoint.Dir)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	for name, key := range FlagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}

		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("prioritization.algorithm", "duplation")
	v.SetDefault("prioritization.size", 0)
	v.SetDefault("prioritization.seed", 0)

	v.SetDefault("reduction.iterations", 0)
	v.SetDefault("reduction.output_dir", "reduced")

	v.SetDefault("store.path", filepath.Join("~", stateDir, "history.db"))
	v.SetDefault("checkpoint.dir", filepath.Join("~", stateDir, "checkpoints"))
	v.SetDefault("checkpoint.codec", "json")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_headers", "")
	v.SetDefault("observability.otlp_insecure", false)
	v.SetDefault("observability.sample_ratio", 0.0)
	v.SetDefault("observability.prometheus_addr", "")
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/' && rest[0] != filepath.Separator) {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, rest)
}

func validateConfig(cfg *Config) error {
	if cfg.Prioritization.Algorithm == "" {
		return ErrEmptyAlgorithm
	}

	if cfg.Prioritization.Size < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, cfg.Prioritization.Size)
	}

	if cfg.Reduction.Iterations < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, cfg.Reduction.Iterations)
	}

	if r := cfg.Observability.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, r)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Log.Level)
	}

	switch cfg.Checkpoint.Codec {
	case "json", "gob", "yaml":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCodec, cfg.Checkpoint.Codec)
	}

	return nil
}
