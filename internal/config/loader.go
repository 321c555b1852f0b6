// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
//  6. Apply cross-field rules that struct tags cannot express.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// maxActionTokenTTL bounds action links to the useful life of an alert.
const maxActionTokenTTL = 7 * 24 * time.Hour

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the configuration from the environment.
func LoadConfig() (*Config, error) {
	return loadConfig(".env")
}

func loadConfig(dotenvFiles ...string) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables already present in the environment,
	// and a missing file is not an error.
	_ = godotenv.Load(dotenvFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := cfg.validateCrossField(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateCrossField checks rules that depend on more than one field.
func (c *Config) validateCrossField() error {
	switch c.Notifications.Transport {
	case "queue":
		if c.Notifications.QueueURL == "" {
			return &ConfigError{
				Type:    ErrMissingEnv,
				Message: "NOTIFICATION_QUEUE_URL is required when NOTIFICATION_TRANSPORT=queue",
			}
		}
	case "email":
		if c.Notifications.SendGridAPIKey.Empty() {
			return &ConfigError{
				Type:    ErrMissingEnv,
				Message: "SENDGRID_API_KEY is required when NOTIFICATION_TRANSPORT=email",
			}
		}
		if len(c.Notifications.Templates) == 0 {
			return &ConfigError{
				Type:    ErrMissingEnv,
				Message: "EMAIL_TEMPLATES is required when NOTIFICATION_TRANSPORT=email",
			}
		}
	}

	if c.Security.ActionTokenTTL <= 0 || c.Security.ActionTokenTTL > maxActionTokenTTL {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("ACTION_TOKEN_TTL must be within (0, %s]", maxActionTokenTTL),
		}
	}

	if c.Jobs.DispatchTimeout <= 0 || c.Jobs.Timeout <= 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "JOB_TIMEOUT and DISPATCH_TIMEOUT must be positive",
		}
	}

	if c.Security.ActionTokenSecret.Unmask() == c.Security.SessionTokenSecret.Unmask() {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "ACTION_TOKEN_SECRET and SESSION_TOKEN_SECRET must differ",
		}
	}

	return nil
}

// IsLocal reports whether the process runs against local resources.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}
