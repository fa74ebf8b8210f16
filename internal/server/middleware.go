package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/zimlet-labs/nextcloud-gateway/internal/api"
	"github.com/zimlet-labs/nextcloud-gateway/internal/appctx"
	"github.com/zimlet-labs/nextcloud-gateway/internal/auth"
)

// requestLoggerMiddleware attaches a request-scoped logger to the
// context with request_id, method, path, and client_ip. Handlers and
// later middleware retrieve it via appctx.GetLogger.
func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", s.proxies.ClientIPString(r),
		)
		next.ServeHTTP(w, r.WithContext(appctx.WithLogger(r.Context(), logger)))
	})
}

// loggingMiddleware writes one access log line per request. It wraps
// the response so Recoverer panics are logged with the correct status.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			// The context logger already carries request_id, method,
			// path, client_ip; only response fields are added here.
			appctx.GetLogger(r.Context()).Info("request",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// unprotectedPaths lists endpoints that bypass session authentication.
var unprotectedPaths = []string{
	"/api/healthz",
	"/metrics",
}

func isUnprotected(path string) bool {
	for _, p := range unprotectedPaths {
		if path == p {
			return true
		}
	}
	return false
}

// authMiddleware enforces session authentication on protected routes.
// The verified session is attached to the request context; no action
// dispatch happens without it.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUnprotected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := s.extractSessionToken(r)
		if token == "" {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
			return
		}

		session, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				api.WriteUnauthorized(w, api.ReasonSessionExpired, "session has expired")
				return
			}
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid session token")
			return
		}

		ctx := appctx.WithSession(r.Context(), session)
		ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx).With("account_id", session.AccountID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractSessionToken gets the session token from the configured
// webmail cookie or the Authorization header.
func (s *Server) extractSessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.Auth.CookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}

	return ""
}
