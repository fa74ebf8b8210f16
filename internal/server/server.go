// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zimlet-labs/nextcloud-gateway/internal/auth"
	"github.com/zimlet-labs/nextcloud-gateway/internal/config"
	"github.com/zimlet-labs/nextcloud-gateway/internal/ratelimit"
)

var (
	ErrMissingConfig   = errors.New("server config is required")
	ErrMissingLogger   = errors.New("server logger is required")
	ErrMissingVerifier = errors.New("session verifier is required")
	ErrMissingGateway  = errors.New("gateway handler is required")
)

// Deps carries everything the server needs. All fields except Limiter
// are required.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Verifier auth.Verifier

	// Gateway handles GET/POST on the gateway endpoint.
	Gateway http.Handler

	// Limiter applies request rate limiting when set.
	Limiter *ratelimit.Limiter
}

func validateDeps(d Deps) error {
	if d.Config == nil {
		return ErrMissingConfig
	}
	if d.Logger == nil {
		return ErrMissingLogger
	}
	if d.Verifier == nil {
		return ErrMissingVerifier
	}
	if d.Gateway == nil {
		return ErrMissingGateway
	}
	return nil
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	verifier   auth.Verifier
	gateway    http.Handler
	limiter    *ratelimit.Limiter
	proxies    *TrustedProxies
	httpServer *http.Server
}

// New creates a new Server from its dependencies.
func New(d Deps) (*Server, error) {
	if err := validateDeps(d); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      d.Config,
		logger:   d.Logger,
		verifier: d.Verifier,
		gateway:  d.Gateway,
		limiter:  d.Limiter,
		proxies:  NewTrustedProxies(d.Config.Server.TrustedProxies),
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         d.Config.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the configured router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"external_origin", s.cfg.ExternalOrigin,
		"external_base_path", s.cfg.ExternalBasePath,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()

	case "static", "selfsigned":
		tlsManager := NewTLSManager(&s.cfg.TLS, s.logger)
		hostname := extractHostname(s.cfg.ExternalOrigin)
		tlsConfig, err := tlsManager.GetTLSConfig(hostname)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		if tlsConfig == nil {
			return fmt.Errorf("TLS config is nil for mode %s", s.cfg.TLS.Mode)
		}

		s.httpServer.TLSConfig = tlsConfig
		s.logger.Info("starting server with TLS", "mode", s.cfg.TLS.Mode)

		// Empty file names make ListenAndServeTLS use TLSConfig.Certificates.
		return s.httpServer.ListenAndServeTLS("", "")

	default:
		return fmt.Errorf("%w: %s", ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// extractHostname extracts just the hostname from an external origin
// URL, for TLS certificate generation.
func extractHostname(externalOrigin string) string {
	fqdn := externalOrigin
	if idx := len("https://"); len(fqdn) > idx && fqdn[:idx] == "https://" {
		fqdn = fqdn[idx:]
	} else if idx := len("http://"); len(fqdn) > idx && fqdn[:idx] == "http://" {
		fqdn = fqdn[idx:]
	}
	if len(fqdn) > 0 && fqdn[len(fqdn)-1] == '/' {
		fqdn = fqdn[:len(fqdn)-1]
	}
	// Strip a port, but leave bracketed IPv6 literals alone.
	for i := len(fqdn) - 1; i >= 0; i-- {
		if fqdn[i] == ':' {
			return fqdn[:i]
		}
		if fqdn[i] == ']' {
			break
		}
	}
	return fqdn
}
