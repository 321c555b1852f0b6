package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarwatch/internal/config"
	"scholarwatch/internal/engine"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{Port: "0", RequestTimeout: 5 * time.Second},
		App: config.AppConfig{
			BaseURL:    "https://app.example.test",
			APIBaseURL: "https://api.example.test",
		},
		Database: config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"},
		Security: config.SecurityConfig{
			ActionTokenSecret:  "api-main-test-action-secret-32-bytes",
			ActionTokenTTL:     72 * time.Hour,
			SessionTokenSecret: "api-main-test-session-secret-32-byte",
			JobTriggerSecret:   "api-main-test-trigger",
		},
		Jobs: config.JobsConfig{
			Concurrency:           2,
			Timeout:               time.Minute,
			DispatchTimeout:       time.Second,
			DeadlineThresholds:    []int{7, 3},
			RecommendationWindows: []int{7},
			AtRiskHorizon:         14 * 24 * time.Hour,
			AtRiskStaleAfter:      7 * 24 * time.Hour,
			AtRiskUrgentDays:      5,
		},
		Notifications: config.NotificationsConfig{Transport: "log"},
	}
}

func TestNewServer_MountsEveryRouteGroup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()

	eng, err := engine.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	srv, err := newServer(cfg, eng, logger)
	require.NoError(t, err)

	do := func(method, target, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := do(http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("job trigger", func(t *testing.T) {
		rec := do(http.MethodPost, "/internal/jobs/goal-completion", "api-main-test-trigger")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["success"])
		assert.Equal(t, []any{}, body["failures"])
	})

	t.Run("job trigger without secret", func(t *testing.T) {
		rec := do(http.MethodPost, "/internal/jobs/goal-completion", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("action link without token", func(t *testing.T) {
		rec := do(http.MethodGet, "/actions/snooze", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	})

	t.Run("student alerts need a session", func(t *testing.T) {
		rec := do(http.MethodGet, "/v1/alerts", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		logger := newLogger(tc.level)
		assert.True(t, logger.Enabled(context.Background(), tc.want), "level %q", tc.level)
		if tc.want > slog.LevelDebug {
			assert.False(t, logger.Enabled(context.Background(), tc.want-4), "level %q", tc.level)
		}
	}
}
