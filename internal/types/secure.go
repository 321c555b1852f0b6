package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds signing keys, shared secrets and API keys. Its String and
// MarshalJSON forms are redacted so a secret never reaches a log line, a
// config dump or an HTTP response body.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// LogValue keeps slog from printing the raw value through reflection.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw value. Callers are limited to the places that
// actually sign, compare or transmit the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// Bytes returns the raw value as a byte slice for key material.
func (s SecretString) Bytes() []byte {
	return []byte(s)
}

// Empty reports whether no secret was configured.
func (s SecretString) Empty() bool {
	return s == ""
}
