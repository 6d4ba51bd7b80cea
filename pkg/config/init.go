package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a commented default configuration file to the default
// location and returns its path.
//
// An existing file is only replaced when force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a commented default configuration file to path,
// creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// section is one top-level block of the generated file.
type section struct {
	key     string
	comment string
	value   any
}

// generateYAMLWithComments renders cfg as YAML, one commented block per
// top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	sections := []section{
		{
			key: "logging",
			comment: `Logging
  level:  DEBUG, INFO, WARN or ERROR
  format: text or json
  output: stdout, stderr or a file path`,
			value: cfg.Logging,
		},
		{
			key: "remote",
			comment: `Remote store holding the datasets
  type: icommands (iRODS), badger (embedded, offline) or s3
  Only the section matching the type is used.

  icommands.command_prefix: prepended to every icommand, e.g. "docker exec -i irods"
  icommands.timeout:        per-command limit such as "30s" ("0s" = none)
  icommands.timezone:       zone "ils -l" prints timestamps in ("Local" = this machine)
  icommands.rate_limit:     requests_per_second and burst (0 = unlimited)
  icommands.env:            extra environment, e.g. IRODS_ENVIRONMENT_FILE`,
			value: cfg.Remote,
		},
		{
			key: "cache",
			comment: `Local item cache
  directory: items are downloaded to <directory>/<dataset uuid>/<handle>`,
			value: cfg.Cache,
		},
		{
			key: "metrics",
			comment: `Prometheus metrics
  textfile: written after each command for the node_exporter textfile collector`,
			value: cfg.Metrics,
		},
	}

	var b strings.Builder
	b.WriteString("# dtool-irods Configuration File\n")
	b.WriteString("#\n")
	b.WriteString("# Values can be overridden with DTOOL_IRODS_* environment variables,\n")
	b.WriteString("# e.g. DTOOL_IRODS_LOGGING_LEVEL=DEBUG.\n")

	for _, s := range sections {
		out, err := yaml.Marshal(map[string]any{s.key: s.value})
		if err != nil {
			return "", fmt.Errorf("failed to render %s section: %w", s.key, err)
		}

		b.WriteString("\n")
		for _, line := range strings.Split(s.comment, "\n") {
			b.WriteString(strings.TrimRight("# "+line, " "))
			b.WriteString("\n")
		}
		b.Write(out)
	}

	return b.String(), nil
}
