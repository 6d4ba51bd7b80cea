package config

import (
	"path/filepath"
	"strings"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Defaults are filled in for every remote type, so a generated config
//     file documents all of them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyRemoteDefaults(&cfg.Remote)
	applyCacheDefaults(&cfg.Cache)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	// Command output goes to stdout, so logs default to stderr.
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyRemoteDefaults sets remote defaults.
func applyRemoteDefaults(cfg *RemoteConfig) {
	if cfg.Type == "" {
		cfg.Type = "icommands"
	}

	// Initialize maps if nil
	if cfg.ICommands == nil {
		cfg.ICommands = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	setDefault(cfg.ICommands, "command_prefix", "")
	setDefault(cfg.ICommands, "timeout", "0s")
	setDefault(cfg.ICommands, "timezone", "Local")

	setDefault(cfg.Badger, "path", filepath.Join(getDataDir(), "badger"))
	setDefault(cfg.Badger, "in_memory", false)

	setDefault(cfg.S3, "region", "us-east-1")
	setDefault(cfg.S3, "bucket", "")
	setDefault(cfg.S3, "key_prefix", "")
	setDefault(cfg.S3, "endpoint", "")
	setDefault(cfg.S3, "max_retries", 0)
}

// applyCacheDefaults sets cache defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Directory == "" {
		cfg.Directory = getCacheDir()
	}
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
