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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-libcrypto/internal/config"
)

var (
	// Global configuration
	globalConfig *Config
)

// Config holds CLI-wide settings populated from persistent flags.
type Config struct {
	ConfigFile   string
	LibDir       string
	Library      string
	OutputFormat string
	Verbose      bool
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "libcrypto",
	Short: "go-libcrypto CLI - native OpenSSL cipher and digest tool",
	Long: `go-libcrypto CLI drives a runtime-loaded OpenSSL libcrypto for
authenticated encryption and message digests.

Supported cipher families:
  - aes-gcm:            AES-128/192/256 in Galois/Counter Mode
  - chacha20:           ChaCha20 keystream cipher
  - chacha20-poly1305:  ChaCha20-Poly1305 AEAD
  - aes-cbc:            AES in CBC mode (block aligned, no padding)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	globalConfig = &Config{}

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&globalConfig.ConfigFile, "config", "",
		"config file (environment overrides apply on top)")
	rootCmd.PersistentFlags().StringVar(&globalConfig.LibDir, "lib-dir", "",
		"directory searched before the system loader path")
	rootCmd.PersistentFlags().StringVar(&globalConfig.Library, "library", "",
		"exact library file name, bypassing version probing")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&globalConfig.Verbose, "verbose", "v", false,
		"verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(digestCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// loadConfig resolves the effective library configuration from the config
// file, environment and flags, with flags winning.
func loadConfig() (*config.Config, error) {
	cfg := config.FromEnv()
	if globalConfig.ConfigFile != "" {
		loaded, err := config.Load(globalConfig.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if globalConfig.LibDir != "" {
		cfg.Backend.Path = globalConfig.LibDir
	}
	if globalConfig.Library != "" {
		cfg.Backend.Library = globalConfig.Library
	}
	if globalConfig.Verbose {
		cfg.Logging.Trace = true
	}
	return cfg, nil
}
