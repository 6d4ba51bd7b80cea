package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that depend
// on the selected remote type.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	switch cfg.Remote.Type {
	case "icommands":
		icfg, err := decodeICommandsConfig(cfg.Remote.ICommands)
		if err != nil {
			return fmt.Errorf("remote.icommands: %w", err)
		}
		if icfg.Timeout < 0 {
			return fmt.Errorf("remote.icommands.timeout: must not be negative")
		}
		if _, err := loadLocation(icfg.Timezone); err != nil {
			return fmt.Errorf("remote.icommands.timezone: %w", err)
		}
	case "badger":
		bcfg, err := decodeBadgerConfig(cfg.Remote.Badger)
		if err != nil {
			return fmt.Errorf("remote.badger: %w", err)
		}
		if !bcfg.InMemory && bcfg.Path == "" {
			return fmt.Errorf("remote.badger.path: required unless in_memory is true")
		}
	case "s3":
		scfg, err := decodeS3Config(cfg.Remote.S3)
		if err != nil {
			return fmt.Errorf("remote.s3: %w", err)
		}
		if scfg.Bucket == "" {
			return fmt.Errorf("remote.s3.bucket: required when remote.type is s3")
		}
	}

	if cfg.Metrics.Textfile != "" && !cfg.Metrics.Enabled {
		return fmt.Errorf("metrics.textfile: set but metrics.enabled is false")
	}

	return nil
}

// loadLocation resolves a timezone name. "" and "Local" select the system
// timezone.
func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
