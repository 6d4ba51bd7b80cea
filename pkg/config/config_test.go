package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "debug"

remote:
  type: "icommands"
  icommands:
    timeout: "45s"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got %q", cfg.Logging.Output)
	}
	if cfg.Cache.Directory == "" {
		t.Error("Expected a default cache directory")
	}

	icfg, err := decodeICommandsConfig(cfg.Remote.ICommands)
	if err != nil {
		t.Fatalf("Failed to decode icommands section: %v", err)
	}
	if icfg.Timeout != 45*time.Second {
		t.Errorf("Expected timeout 45s from file, got %v", icfg.Timeout)
	}
	if icfg.Timezone != "Local" {
		t.Errorf("Expected default timezone 'Local', got %q", icfg.Timezone)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a non-existent path so the user's own config is never read
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Remote.Type != "icommands" {
		t.Errorf("Expected default remote type 'icommands', got %q", cfg.Remote.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[logging]
level = "WARN"
format = "json"

[remote]
type = "badger"

[remote.badger]
in_memory = true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Remote.Type != "badger" {
		t.Errorf("Expected remote type 'badger', got %q", cfg.Remote.Type)
	}
	if cfg.Remote.Badger["in_memory"] != true {
		t.Errorf("Expected in_memory true, got %v", cfg.Remote.Badger["in_memory"])
	}
}

func TestLoad_InvalidRemoteType(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("remote:\n  type: ftp\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown remote type")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	path := GetDefaultConfigPath()
	if path != filepath.Join("/xdg", "dtool-irods", "config.yaml") {
		t.Errorf("Unexpected default config path %q", path)
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "dtool-irods" {
		t.Errorf("Expected directory name 'dtool-irods', got %q", filepath.Base(dir))
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in an empty config home")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Fatal("Expected config to exist after InitConfig")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("DTOOL_IRODS_LOGGING_LEVEL", "ERROR")
	t.Setenv("DTOOL_IRODS_REMOTE_TYPE", "badger")
	t.Setenv("DTOOL_IRODS_CACHE_DIRECTORY", cacheDir)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

remote:
  type: "icommands"
  badger:
    in_memory: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify environment variables override config file
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Remote.Type != "badger" {
		t.Errorf("Expected remote type 'badger' from env var, got %q", cfg.Remote.Type)
	}
	if cfg.Cache.Directory != cacheDir {
		t.Errorf("Expected cache directory %q from env var, got %q", cacheDir, cfg.Cache.Directory)
	}
}
