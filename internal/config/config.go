// Package config defines the configuration structure for the scholarwatch
// engine. Configuration is loaded once at process start and is immutable
// thereafter. Values come from the OS environment, optionally seeded from a
// .env file for local development.
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"scholarwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	App           AppConfig
	Database      DatabaseConfig
	Security      SecurityConfig
	Jobs          JobsConfig
	Notifications NotificationsConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// AppConfig holds the public URLs used to build action links and redirects
// (no trailing slash).
type AppConfig struct {
	// BaseURL is the student-facing web app, target of action redirects.
	BaseURL string `envconfig:"APP_BASE_URL" validate:"required,url"`
	// APIBaseURL is where this service's action endpoints are reachable.
	APIBaseURL string `envconfig:"API_BASE_URL" validate:"required,url"`
}

// DatabaseConfig selects the alert store backend and tunes its pool.
type DatabaseConfig struct {
	Driver string `envconfig:"DATABASE_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`
	// URL is a postgres DSN, or a file path / ":memory:" for sqlite.
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// SecurityConfig holds the three independent secrets the engine uses.
type SecurityConfig struct {
	// ActionTokenSecret signs the snooze/dismiss/upload links in emails.
	ActionTokenSecret SecretString  `envconfig:"ACTION_TOKEN_SECRET" validate:"required,min=32"`
	ActionTokenTTL    time.Duration `envconfig:"ACTION_TOKEN_TTL" default:"72h"`
	// SessionTokenSecret verifies student sessions minted by the auth service.
	SessionTokenSecret SecretString `envconfig:"SESSION_TOKEN_SECRET" validate:"required,min=32"`
	// JobTriggerSecret is the bearer secret the external scheduler presents.
	JobTriggerSecret SecretString `envconfig:"JOB_TRIGGER_SECRET" validate:"required,min=16"`
}

// JobsConfig tunes the detection jobs.
type JobsConfig struct {
	Concurrency     int           `envconfig:"JOB_CONCURRENCY" default:"4" validate:"min=1,max=64"`
	Timeout         time.Duration `envconfig:"JOB_TIMEOUT" default:"5m"`
	DispatchTimeout time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"10s"`

	DeadlineThresholds    []int `envconfig:"DEADLINE_THRESHOLDS_DAYS" default:"7,3" validate:"min=1,dive,oneof=3 7"`
	RecommendationWindows []int `envconfig:"RECOMMENDATION_WINDOWS_DAYS" default:"7" validate:"min=1,dive,min=1,max=30"`

	AtRiskHorizon    time.Duration `envconfig:"AT_RISK_HORIZON" default:"336h"`
	AtRiskStaleAfter time.Duration `envconfig:"AT_RISK_STALE_AFTER" default:"168h"`
	AtRiskUrgentDays int           `envconfig:"AT_RISK_URGENT_DAYS" default:"5" validate:"min=1"`
}

// NotificationsConfig selects how alert notifications leave the engine.
type NotificationsConfig struct {
	// Transport is "queue" (hand off to the email worker via SQS) or "email"
	// (send directly through SendGrid) or "log" (local runs only).
	Transport string `envconfig:"NOTIFICATION_TRANSPORT" default:"queue" validate:"oneof=queue email log"`
	QueueURL  string `envconfig:"NOTIFICATION_QUEUE_URL" validate:"omitempty,url"`

	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	SendGridURL    string       `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com" validate:"url"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@scholarwatch.app" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"Scholarwatch"`

	// Templates maps an alert kind to its SendGrid dynamic template id.
	// Example: deadline-3d:d-abc,goal-completion:d-def
	Templates map[string]string `envconfig:"EMAIL_TEMPLATES"`
}

// AWSConfig holds regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Scholarwatch"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a conditionally required variable was not set.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
