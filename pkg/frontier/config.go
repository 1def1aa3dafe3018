package frontier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/frontier/internal/logger"
	"github.com/PentesterFlow/frontier/internal/state"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid frontier config")

// EnvPrefix is the default environment variable prefix for ApplyEnv.
const EnvPrefix = "FRONTIER"

// Config holds frontier configuration.
type Config struct {
	// Maximum number of queued, unfetched URLs
	Capacity int `json:"capacity" yaml:"capacity" envconfig:"CAPACITY"`

	// Visited set shard count (rounded up to a power of two)
	Shards int `json:"shards" yaml:"shards" envconfig:"SHARDS"`

	// Expected number of distinct URLs, used to size bloom filters
	ExpectedURLs uint `json:"expected_urls" yaml:"expected_urls" envconfig:"EXPECTED_URLS"`

	// Bloom pre-filter false positive target
	FalsePositiveRate float64 `json:"false_positive_rate" yaml:"false_positive_rate" envconfig:"FALSE_POSITIVE_RATE"`

	// Unmark URLs refused by a full queue instead of burning them
	ReleaseOnFull bool `json:"release_on_full" yaml:"release_on_full" envconfig:"RELEASE_ON_FULL"`

	// Logging, read from the environment separately by ApplyEnv
	Log LogConfig `json:"log" yaml:"log" ignored:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" envconfig:"LOG_LEVEL"`
	Pretty bool   `json:"pretty" yaml:"pretty" envconfig:"LOG_PRETTY"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Capacity:          10000,
		Shards:            state.DefaultShards,
		ExpectedURLs:      100000,
		FalsePositiveRate: state.DefaultFalsePositiveRate,
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON) on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file. Paths ending in .json are
// written as JSON, everything else as YAML.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from environment variables named
// <prefix>_CAPACITY, <prefix>_SHARDS and so on. Unset variables leave the
// current values untouched.
func (c *Config) ApplyEnv(prefix string) error {
	if err := envconfig.Process(prefix, c); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if err := envconfig.Process(prefix, &c.Log); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1", ErrInvalidConfig)
	}

	if c.Shards < 0 {
		return fmt.Errorf("%w: shards must not be negative", ErrInvalidConfig)
	}

	if c.FalsePositiveRate < 0 || c.FalsePositiveRate >= 1 {
		return fmt.Errorf("%w: false positive rate must be in [0, 1)", ErrInvalidConfig)
	}

	if c.Log.Level != "" {
		if _, err := logger.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
		}
	}

	return nil
}

// Logger builds a logger from the log section.
func (c *Config) Logger() *logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Pretty = c.Log.Pretty
	if level, err := logger.ParseLevel(c.Log.Level); err == nil && c.Log.Level != "" {
		cfg.Level = level
	}
	return logger.New(cfg)
}
