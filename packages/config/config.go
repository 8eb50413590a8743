// Package config loads testpulse configuration from JSON config files and
// merges it with CLI overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config represents the testpulse configuration.
type Config struct {
	LogDir      string `json:"logDir,omitempty"`      // Root for session log files
	BaseURL     string `json:"baseURL,omitempty"`     // Storefront under test
	Database    string `json:"database,omitempty"`    // Connection string for SQL checks
	SuiteDir    string `json:"suiteDir,omitempty"`    // Directory searched for suite files
	Parallel    *bool  `json:"parallel,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"` // Parallel check limit
	NoColor     *bool  `json:"noColor,omitempty"`
	Verbose     *bool  `json:"verbose,omitempty"`
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetParallel returns the parallel setting, defaulting to false
func (c *Config) GetParallel() bool {
	return getBool(c.Parallel, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".testpulse.config.json",
	"testpulse.config.json",
	".testpulserc",
	".testpulserc.json",
}

// DefaultConfig returns the built-in defaults. TESTPULSE_LOG_DIR overrides
// the log directory root.
func DefaultConfig() *Config {
	logDir := os.Getenv("TESTPULSE_LOG_DIR")
	if logDir == "" {
		logDir = "test_logs"
	}
	return &Config{
		LogDir:      logDir,
		SuiteDir:    "suites",
		Concurrency: 5,
	}
}

// LoadConfig loads configuration from the specified path or searches for
// config files in the current directory.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.LogDir != "" {
		result.LogDir = other.LogDir
	}
	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.Database != "" {
		result.Database = other.Database
	}
	if other.SuiteDir != "" {
		result.SuiteDir = other.SuiteDir
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Parallel != nil {
		result.Parallel = other.Parallel
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
