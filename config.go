package stagegraph

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the host's startup settings. Values load from an optional
// YAML file first, then environment variables with the STAGEGRAPH_
// prefix override.
type Config struct {
	SampleRate      float64 `yaml:"sampleRate" envconfig:"SAMPLE_RATE"`
	BlockSize       int     `yaml:"blockSize" envconfig:"BLOCK_SIZE"`
	FlushBlocks     int     `yaml:"flushBlocks" envconfig:"FLUSH_BLOCKS"`
	OutputDeviceUID string  `yaml:"outputDeviceUID" envconfig:"OUTPUT_DEVICE_UID"`
	InputDeviceUID  string  `yaml:"inputDeviceUID" envconfig:"INPUT_DEVICE_UID"`
	SessionPath     string  `yaml:"sessionPath" envconfig:"SESSION_PATH"`
	LogLevel        string  `yaml:"logLevel" envconfig:"LOG_LEVEL"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:  DefaultSampleRate,
		BlockSize:   DefaultBlockSize,
		FlushBlocks: DefaultFlushBlocks,
		LogLevel:    "info",
	}
}

// LoadConfig reads configuration from the YAML file at path (skipped if
// path is empty) and then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := envconfig.Process("stagegraph", &cfg); err != nil {
		return cfg, fmt.Errorf("applying environment overrides: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings the graph cannot run with.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	}
	if c.FlushBlocks < 1 {
		return fmt.Errorf("flush blocks must be at least 1, got %d", c.FlushBlocks)
	}
	return nil
}
