package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultRequestTimeout = 30 * time.Second

// redactedHeaders never reach the request log.
var redactedHeaders = []string{"Authorization", "Cookie"}

// MountRoutes registers the middleware chain and every route group.
//
// Order: Recoverer, RequestID, SecurityHeaders, RequestLogger, Compress,
// then per group ContextTimeout and, for /v1, SessionAuth.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, redactedHeaders))
	s.router.Use(CompressMiddleware)

	s.router.Get("/health", s.HandleHealth)

	s.router.Group(func(r chi.Router) {
		for _, register := range s.PublicRoutes {
			register(r)
		}
	})

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(ContextTimeoutMiddleware(s.requestTimeout()))
		r.Use(s.SessionAuth)
		for _, register := range s.V1Routes {
			register(r)
		}
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}
