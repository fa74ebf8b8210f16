package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zimlet-labs/nextcloud-gateway/internal/api"
	"github.com/zimlet-labs/nextcloud-gateway/internal/metrics"
)

// setupRoutes creates the chi router with the full middleware stack.
//
// Order matters: RequestID first so the request logger can pick it up,
// the access log wraps the response before Recoverer so panics are
// logged with their real status, auth runs before rate limiting so the
// limiter can key by the authenticated account.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLoggerMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if len(s.cfg.Server.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.cfg.Metrics.Enabled {
		r.Use(metrics.Middleware)
	}

	r.Use(s.authMiddleware)

	// After auth so authenticated traffic is keyed per account; the
	// fallback key is the proxy-aware client IP, never a raw header.
	if s.limiter != nil {
		r.Use(s.limiter.Middleware(s.proxies.ClientIPString))
	}

	r.Get("/api/healthz", api.HealthHandler)
	if s.cfg.Metrics.Enabled {
		r.Method("GET", "/metrics", metrics.Handler())
	}

	// Gateway endpoint, optionally under external_base_path.
	if s.cfg.ExternalBasePath != "" {
		r.Route(s.cfg.ExternalBasePath, func(r chi.Router) {
			r.Mount("/gateway", s.gateway)
		})
	} else {
		r.Mount("/gateway", s.gateway)
	}

	return r
}
