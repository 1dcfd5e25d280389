// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-libcrypto.
//
// go-libcrypto is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config carries the externally configurable inputs of the
// subsystem: where to look for the native backend library and how noisy
// to be about it. Configuration comes from an optional YAML file with
// environment variable overrides, or from the environment alone.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the complete libcrypto configuration
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BackendConfig controls native backend resolution
type BackendConfig struct {
	// Path is an optional directory searched before the platform's
	// default library path.
	Path string `yaml:"path"`

	// Library is an optional explicit library file name or path that
	// replaces the platform candidate list.
	Library string `yaml:"library"`
}

// LoggingConfig controls diagnostic output
type LoggingConfig struct {
	// Trace enables debug logging of backend resolution and cipher
	// operations.
	Trace bool `yaml:"trace"`
}

// MetricsConfig controls Prometheus instrumentation
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// FromEnv returns the default configuration with environment variable
// overrides applied, for callers that carry no config file.
func FromEnv() *Config {
	cfg := Default()
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("LIBCRYPTO_PATH"); dir != "" {
		cfg.Backend.Path = dir
	}
	if lib := os.Getenv("LIBCRYPTO_LIB"); lib != "" {
		cfg.Backend.Library = lib
	}
	if trace := os.Getenv("LIBCRYPTO_TRACE"); trace != "" {
		if v, err := strconv.ParseBool(trace); err == nil {
			cfg.Logging.Trace = v
		}
	}
	if m := os.Getenv("LIBCRYPTO_METRICS"); m != "" {
		if v, err := strconv.ParseBool(m); err == nil {
			cfg.Metrics.Enabled = v
		}
	}
}
