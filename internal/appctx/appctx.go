// Package appctx provides context-based utilities for cross-cutting concerns.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}
type sessionKey struct{}

// Session identifies the authenticated webmail user for a request.
type Session struct {
	// AccountID is the webmail account identifier (JWT subject).
	AccountID string

	// Token is the raw session token as presented by the client. It is
	// forwarded to the host token service, never to remote storage.
	Token string
}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// GetLogger returns the logger from the context, or slog.Default() if missing.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return slog.Default()
}

// WithSession attaches the authenticated session to the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session from the context (if present).
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
