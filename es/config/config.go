// Package config loads store settings from a file and the environment and opens
// a ready-to-use event store from them.
//
// Example config.toml:
//
//	dsn = "sqlite://./events.db"
//	strategy = "single_stream"
//	load_batch_size = 500
//	log_level = "debug"
//	log_file = "/var/log/pupstreams/store.log"
//
// Every key can be overridden with a PUPSTREAMS_ prefixed environment
// variable, e.g. PUPSTREAMS_DSN.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix prefixes the environment overrides.
const EnvPrefix = "PUPSTREAMS"

// Strategy names accepted in the strategy key.
const (
	StrategySimple          = "simple"
	StrategySingleStream    = "single_stream"
	StrategyAggregateStream = "aggregate_stream"
)

// ErrInvalidConfig indicates a missing or malformed setting.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the settings read by Load.
type Config struct {
	DSN                        string `mapstructure:"dsn"`
	Strategy                   string `mapstructure:"strategy"`
	EventStreamsTable          string `mapstructure:"event_streams_table"`
	LogLevel                   string `mapstructure:"log_level"`
	LogFile                    string `mapstructure:"log_file"`
	LoadBatchSize              int    `mapstructure:"load_batch_size"`
	LogMaxSizeMB               int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups              int    `mapstructure:"log_max_backups"`
	DisableTransactionHandling bool   `mapstructure:"disable_transaction_handling"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy", StrategySimple)
	v.SetDefault("event_streams_table", "event_streams")
	v.SetDefault("load_batch_size", 10000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 5)
	v.SetDefault("disable_transaction_handling", false)
	v.SetDefault("dsn", "")
}

// Load reads path (TOML, YAML or JSON, by extension) and applies environment
// overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is required", ErrInvalidConfig)
	}
	if _, _, err := splitDSN(c.DSN); err != nil {
		return err
	}
	switch c.Strategy {
	case StrategySimple, StrategySingleStream, StrategyAggregateStream:
	default:
		return fmt.Errorf("%w: unknown strategy %q (supported: %s, %s, %s)", ErrInvalidConfig,
			c.Strategy, StrategySimple, StrategySingleStream, StrategyAggregateStream)
	}
	if c.LoadBatchSize < 1 {
		return fmt.Errorf("%w: load_batch_size must be at least 1, got %d", ErrInvalidConfig, c.LoadBatchSize)
	}
	if c.EventStreamsTable == "" {
		return fmt.Errorf("%w: event_streams_table must not be empty", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, level)
}

// NewLogger builds a text slog logger at LogLevel. With LogFile set, output goes to
// a rotating file; otherwise to stderr. Close the returned closer on shutdown.
func (c *Config) NewLogger() (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if c.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSizeMB,
			MaxBackups: c.LogMaxBackups,
			Compress:   true,
		}
		out, closer = rotating, rotating
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
