// Package main is the entry point for the scholarwatch API server.
//
// It serves the one-click action links embedded in notifications, the
// signed-in student's alert endpoints, and the internal job trigger used by
// an external cron service. Graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scholarwatch/internal/api/handlers"
	"scholarwatch/internal/config"
	"scholarwatch/internal/core"
	"scholarwatch/internal/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("scholarwatch API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.String(),
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
		"transport", cfg.Notifications.Transport,
	)

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.Close()

	srv, err := newServer(cfg, eng, logger)
	if err != nil {
		return err
	}
	return runHTTPServer(srv, cfg, logger)
}

// newServer mounts every handler on the core chassis.
func newServer(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Sessions = eng.Sessions
	srv.HealthProbes = eng.Probes

	actions := handlers.NewActionHandler(eng.Tokens, eng.Alerts, eng.Scope, cfg.App.BaseURL, logger)
	triggers := handlers.NewTriggerHandler(eng.Runner, cfg.Security.JobTriggerSecret, cfg.Jobs.Timeout, nil, logger)
	studentAlerts := handlers.NewAlertHandler(eng.Alerts, logger)

	srv.PublicRoutes = append(srv.PublicRoutes, actions.RegisterRoutes, triggers.RegisterRoutes)
	srv.V1Routes = append(srv.V1Routes, studentAlerts.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	// A triggered job holds its response open until the run finishes.
	writeTimeout := 30 * time.Second
	if jt := cfg.Jobs.Timeout + 5*time.Second; jt > writeTimeout {
		writeTimeout = jt
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
