package config

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"scholarwatch/internal/types"
)

// TestSecretStringAlias verifies that config.SecretString is the same type
// as types.SecretString and retains its redaction behavior.
func TestSecretStringAlias(t *testing.T) {
	secret := SecretString("my-action-secret")

	if got := secret.String(); got != "***REDACTED***" {
		t.Errorf("SecretString.String() = %q, want %q", got, "***REDACTED***")
	}
	if got := fmt.Sprintf("%v", secret); got != "***REDACTED***" {
		t.Errorf("fmt.Sprintf(%%v) = %q, want %q", got, "***REDACTED***")
	}
	if got := secret.Unmask(); got != "my-action-secret" {
		t.Errorf("SecretString.Unmask() = %q, want %q", got, "my-action-secret")
	}

	var typesSecret types.SecretString = "test"
	var configSecret SecretString = typesSecret
	if configSecret != typesSecret {
		t.Error("config.SecretString and types.SecretString should be the same type")
	}
}

// TestConfigStructFields verifies that the Config struct has all expected fields
// with the correct types.
func TestConfigStructFields(t *testing.T) {
	expectedFields := map[string]string{
		"Environment":   "string",
		"LogLevel":      "string",
		"Server":        "config.ServerConfig",
		"App":           "config.AppConfig",
		"Database":      "config.DatabaseConfig",
		"Security":      "config.SecurityConfig",
		"Jobs":          "config.JobsConfig",
		"Notifications": "config.NotificationsConfig",
		"AWS":           "config.AWSConfig",
		"Observability": "config.ObservabilityConfig",
		"Build":         "config.BuildInfo",
	}

	configType := reflect.TypeOf(Config{})
	for fieldName, expectedType := range expectedFields {
		field, ok := configType.FieldByName(fieldName)
		if !ok {
			t.Errorf("Config is missing field %q", fieldName)
			continue
		}
		if got := field.Type.String(); got != expectedType {
			t.Errorf("Config.%s type = %q, want %q", fieldName, got, expectedType)
		}
	}

	if got := configType.NumField(); got != len(expectedFields) {
		t.Errorf("Config has %d fields, want %d", got, len(expectedFields))
	}
}

// TestEnvconfigTags pins the environment variable names operators set.
func TestEnvconfigTags(t *testing.T) {
	tests := []struct {
		structType reflect.Type
		fieldName  string
		wantValue  string
	}{
		{reflect.TypeOf(Config{}), "Environment", "APP_ENV"},
		{reflect.TypeOf(Config{}), "LogLevel", "LOG_LEVEL"},

		{reflect.TypeOf(ServerConfig{}), "Port", "PORT"},
		{reflect.TypeOf(ServerConfig{}), "RequestTimeout", "REQUEST_TIMEOUT"},

		{reflect.TypeOf(AppConfig{}), "BaseURL", "APP_BASE_URL"},
		{reflect.TypeOf(AppConfig{}), "APIBaseURL", "API_BASE_URL"},

		{reflect.TypeOf(DatabaseConfig{}), "Driver", "DATABASE_DRIVER"},
		{reflect.TypeOf(DatabaseConfig{}), "URL", "DATABASE_URL"},
		{reflect.TypeOf(DatabaseConfig{}), "MaxConns", "DB_MAX_CONNS"},

		{reflect.TypeOf(SecurityConfig{}), "ActionTokenSecret", "ACTION_TOKEN_SECRET"},
		{reflect.TypeOf(SecurityConfig{}), "ActionTokenTTL", "ACTION_TOKEN_TTL"},
		{reflect.TypeOf(SecurityConfig{}), "SessionTokenSecret", "SESSION_TOKEN_SECRET"},
		{reflect.TypeOf(SecurityConfig{}), "JobTriggerSecret", "JOB_TRIGGER_SECRET"},

		{reflect.TypeOf(JobsConfig{}), "Concurrency", "JOB_CONCURRENCY"},
		{reflect.TypeOf(JobsConfig{}), "Timeout", "JOB_TIMEOUT"},
		{reflect.TypeOf(JobsConfig{}), "DeadlineThresholds", "DEADLINE_THRESHOLDS_DAYS"},
		{reflect.TypeOf(JobsConfig{}), "RecommendationWindows", "RECOMMENDATION_WINDOWS_DAYS"},
		{reflect.TypeOf(JobsConfig{}), "AtRiskStaleAfter", "AT_RISK_STALE_AFTER"},

		{reflect.TypeOf(NotificationsConfig{}), "Transport", "NOTIFICATION_TRANSPORT"},
		{reflect.TypeOf(NotificationsConfig{}), "QueueURL", "NOTIFICATION_QUEUE_URL"},
		{reflect.TypeOf(NotificationsConfig{}), "SendGridAPIKey", "SENDGRID_API_KEY"},
		{reflect.TypeOf(NotificationsConfig{}), "Templates", "EMAIL_TEMPLATES"},

		{reflect.TypeOf(AWSConfig{}), "Region", "AWS_REGION"},
		{reflect.TypeOf(AWSConfig{}), "EndpointURL", "AWS_ENDPOINT_URL"},

		{reflect.TypeOf(ObservabilityConfig{}), "MetricsEnabled", "METRICS_ENABLED"},
		{reflect.TypeOf(ObservabilityConfig{}), "MetricNamespace", "METRIC_NAMESPACE"},
	}

	for _, tt := range tests {
		t.Run(tt.structType.Name()+"."+tt.fieldName, func(t *testing.T) {
			field, ok := tt.structType.FieldByName(tt.fieldName)
			if !ok {
				t.Fatalf("field %q not found on %s", tt.fieldName, tt.structType.Name())
			}
			if got := field.Tag.Get("envconfig"); got != tt.wantValue {
				t.Errorf("%s.%s envconfig tag = %q, want %q", tt.structType.Name(), tt.fieldName, got, tt.wantValue)
			}
		})
	}
}

// TestSecretFieldTypes verifies that every credential is a SecretString so it
// never reaches a log line in clear text.
func TestSecretFieldTypes(t *testing.T) {
	secretType := reflect.TypeOf(SecretString(""))

	tests := []struct {
		structType reflect.Type
		fieldName  string
	}{
		{reflect.TypeOf(DatabaseConfig{}), "URL"},
		{reflect.TypeOf(SecurityConfig{}), "ActionTokenSecret"},
		{reflect.TypeOf(SecurityConfig{}), "SessionTokenSecret"},
		{reflect.TypeOf(SecurityConfig{}), "JobTriggerSecret"},
		{reflect.TypeOf(NotificationsConfig{}), "SendGridAPIKey"},
	}

	for _, tt := range tests {
		field, ok := tt.structType.FieldByName(tt.fieldName)
		if !ok {
			t.Errorf("field %q not found on %s", tt.fieldName, tt.structType.Name())
			continue
		}
		if field.Type != secretType {
			t.Errorf("%s.%s type = %s, want SecretString", tt.structType.Name(), tt.fieldName, field.Type)
		}
	}
}

// TestDurationFieldTypes verifies that time-based configuration fields use
// time.Duration as their Go type.
func TestDurationFieldTypes(t *testing.T) {
	durationType := reflect.TypeOf(time.Duration(0))

	tests := []struct {
		structType reflect.Type
		fieldName  string
	}{
		{reflect.TypeOf(ServerConfig{}), "RequestTimeout"},
		{reflect.TypeOf(DatabaseConfig{}), "MaxConnLifetime"},
		{reflect.TypeOf(SecurityConfig{}), "ActionTokenTTL"},
		{reflect.TypeOf(JobsConfig{}), "Timeout"},
		{reflect.TypeOf(JobsConfig{}), "DispatchTimeout"},
		{reflect.TypeOf(JobsConfig{}), "AtRiskHorizon"},
		{reflect.TypeOf(JobsConfig{}), "AtRiskStaleAfter"},
	}

	for _, tt := range tests {
		field, ok := tt.structType.FieldByName(tt.fieldName)
		if !ok {
			t.Errorf("field %q not found on %s", tt.fieldName, tt.structType.Name())
			continue
		}
		if field.Type != durationType {
			t.Errorf("%s.%s type = %s, want time.Duration", tt.structType.Name(), tt.fieldName, field.Type)
		}
	}
}

func TestConfigErrorTypeConstants(t *testing.T) {
	tests := []struct {
		got  ConfigErrorType
		want string
	}{
		{ErrMissingEnv, "MISSING_ENV"},
		{ErrValidation, "VALIDATION_FAILED"},
		{ErrParsing, "PARSING_FAILED"},
	}
	for _, tt := range tests {
		if string(tt.got) != tt.want {
			t.Errorf("ConfigErrorType = %q, want %q", tt.got, tt.want)
		}
	}
}
