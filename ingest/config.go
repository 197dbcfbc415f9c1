package ingest

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config controls a directory ingest run.
type Config struct {
	// Workers is the number of concurrent file readers/analyzers.
	// Defaults to the number of CPUs.
	Workers int `yaml:"workers"`

	// IncludeHidden also indexes dot-files and descends into
	// dot-directories.
	IncludeHidden bool `yaml:"include_hidden"`

	// Recursive descends into subdirectories. On by default; set false
	// to index only the files directly under the root.
	Recursive bool `yaml:"recursive"`

	// ExcludeSuffixes skips files with any of these name suffixes.
	ExcludeSuffixes []string `yaml:"exclude_suffixes"`

	// MaxFileSize skips files larger than this many bytes.
	// Defaults to 8 MiB.
	MaxFileSize int64 `yaml:"max_file_size"`

	// MemoryLimit bounds the bytes of file content held in flight
	// across workers. Defaults to 256 MiB; 0 disables the bound.
	MemoryLimit int64 `yaml:"memory_limit"`

	// IOLimitBytesPerSec throttles file reading. 0 means unlimited.
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec"`

	// Refresh replaces documents whose path is already indexed instead
	// of adding duplicates.
	Refresh bool `yaml:"refresh"`
}

// DefaultConfig returns the defaults used when a setting is absent.
func DefaultConfig() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		Recursive:       true,
		ExcludeSuffixes: []string{"~", ".tmp", ".swp", ".bak"},
		MaxFileSize:     8 << 20,
		MemoryLimit:     256 << 20,
	}
}

// LoadConfig reads a YAML config file, applying defaults for any
// setting the file omits.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative")
	}
	if c.MemoryLimit < 0 {
		return fmt.Errorf("memory_limit must not be negative")
	}
	if c.IOLimitBytesPerSec < 0 {
		return fmt.Errorf("io_limit_bytes_per_sec must not be negative")
	}
	return nil
}
