package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML configuration for tomostack.
type Config struct {
	// RunPipelinesOnLoad triggers pipeline execution after loading a
	// state document with operators.
	RunPipelinesOnLoad bool `yaml:"runPipelinesOnLoad"`

	// Subsample holds default resample settings for convert.
	Subsample SubsampleConfig `yaml:"subsample"`
}

// SubsampleConfig mirrors the resample options.
type SubsampleConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Strides      [3]int32 `yaml:"strides"`
	VolumeBounds [6]int32 `yaml:"volumeBounds"`
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() Config {
	return Config{
		Subsample: SubsampleConfig{
			Strides:      [3]int32{1, 1, 1},
			VolumeBounds: [6]int32{-1, -1, -1, -1, -1, -1},
		},
	}
}

// loadConfig reads a YAML configuration file, falling back to defaults
// for absent fields.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
