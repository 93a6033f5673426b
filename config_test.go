package stagegraph

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("sampleRate = %v", cfg.SampleRate)
	}
	if cfg.BlockSize != DefaultBlockSize {
		t.Errorf("blockSize = %d", cfg.BlockSize)
	}
	if cfg.FlushBlocks != DefaultFlushBlocks {
		t.Errorf("flushBlocks = %d", cfg.FlushBlocks)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("logLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "sampleRate: 96000\nblockSize: 128\noutputDeviceUID: scarlett\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SampleRate != 96000 {
		t.Errorf("sampleRate = %v", cfg.SampleRate)
	}
	if cfg.BlockSize != 128 {
		t.Errorf("blockSize = %d", cfg.BlockSize)
	}
	if cfg.OutputDeviceUID != "scarlett" {
		t.Errorf("outputDeviceUID = %q", cfg.OutputDeviceUID)
	}
	// Untouched fields keep their defaults.
	if cfg.FlushBlocks != DefaultFlushBlocks {
		t.Errorf("flushBlocks = %d", cfg.FlushBlocks)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("STAGEGRAPH_BLOCK_SIZE", "256")
	t.Setenv("STAGEGRAPH_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BlockSize != 256 {
		t.Errorf("blockSize = %d, want env override 256", cfg.BlockSize)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("logLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("blockSize: [not a number"), 0o644)
	if _, err := LoadConfig(bad); err == nil {
		t.Error("expected error for malformed YAML")
	}

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	os.WriteFile(invalid, []byte("blockSize: -1\n"), 0o644)
	if _, err := LoadConfig(invalid); err == nil {
		t.Error("expected validation error for negative block size")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	for _, mutate := range []func(*Config){
		func(c *Config) { c.SampleRate = 0 },
		func(c *Config) { c.BlockSize = 0 },
		func(c *Config) { c.FlushBlocks = 0 },
	} {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", c)
		}
	}
}
