// Package core is the HTTP chassis shared by every scholarwatch endpoint: the
// chi router, the global middleware chain, session authentication, health
// probes and the JSON response helpers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scholarwatch/internal/config"
	"scholarwatch/internal/types"
)

// SessionVerifier resolves a bearer session token to the student it
// belongs to. auth.SessionVerifier implements it.
type SessionVerifier interface {
	Verify(token string) (types.Actor, error)
}

// RouteRegistrar mounts a handler group onto a router.
type RouteRegistrar func(r chi.Router)

// Server holds the router and everything the middleware chain needs.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Sessions     SessionVerifier
	HealthProbes []HealthProbe

	// PublicRoutes are mounted at the root without session auth: the
	// token-authenticated action links and the internal job trigger.
	PublicRoutes []RouteRegistrar
	// V1Routes are mounted under /v1 behind session auth.
	V1Routes []RouteRegistrar

	router *chi.Mux
}

// NewServer creates a Server. Routes are mounted by MountRoutes once the
// registrars are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
