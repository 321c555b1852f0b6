package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "action-token-signing-secret-0123456789"

func TestSecretString_Formatting(t *testing.T) {
	s := SecretString(testSecret)

	for _, verb := range []string{"%s", "%v", "%+v"} {
		out := fmt.Sprintf(verb, s)
		assert.NotContains(t, out, testSecret, "verb %s leaked the secret", verb)
		assert.Equal(t, redactedPlaceholder, out)
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	cfg := struct {
		Name   string       `json:"name"`
		Secret SecretString `json:"secret"`
	}{Name: "trigger", Secret: SecretString(testSecret)}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), testSecret)
	assert.JSONEq(t, `{"name":"trigger","secret":"***REDACTED***"}`, string(data))
}

func TestSecretString_SlogRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("loaded", "secret", SecretString(testSecret))

	assert.NotContains(t, buf.String(), testSecret)
	assert.Contains(t, buf.String(), redactedPlaceholder)
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)

	assert.Equal(t, testSecret, s.Unmask())
	assert.Equal(t, []byte(testSecret), s.Bytes())
	assert.False(t, s.Empty())
	assert.True(t, SecretString("").Empty())
	assert.False(t, strings.Contains(s.String(), "secret"))
}
