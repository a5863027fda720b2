package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the settings read from the YAML config file. Command line
// flags override them.
type Config struct {
	// Compression is the deflate level for imported data; -1 stores it raw.
	Compression int `yaml:"compression"`

	// ChunkSize is the number of samples per chunk; 0 picks one from the
	// data size.
	ChunkSize uint64 `yaml:"chunk_size"`

	// Catalog is the default catalog database.
	Catalog string `yaml:"catalog"`

	// Verbosity is the glog -v level.
	Verbosity int `yaml:"verbosity"`

	// Metrics dumps the Prometheus metrics when a command finishes.
	Metrics bool `yaml:"metrics"`
}

// DefaultConfig returns the settings used when no config file is found.
func DefaultConfig() Config {
	return Config{
		Compression: 1,
		Catalog:     "arf-catalog.db",
	}
}

// defaultConfigPath is $HOME/.arfinfo.yaml.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".arfinfo.yaml")
}

// LoadConfig reads the config file at path over the defaults. An empty
// path means the default location, which need not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := parseConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func parseConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if cfg.Compression > 9 {
		return fmt.Errorf("compression %d out of range", cfg.Compression)
	}
	if cfg.Verbosity < 0 {
		return fmt.Errorf("negative verbosity %d", cfg.Verbosity)
	}
	return nil
}
