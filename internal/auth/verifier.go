// Package auth verifies inbound webmail session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zimlet-labs/nextcloud-gateway/internal/appctx"
)

var (
	// ErrInvalidToken indicates a missing, malformed or badly signed
	// session token.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrExpiredToken indicates the session token has expired.
	ErrExpiredToken = errors.New("session token expired")
)

// Verifier validates a raw session token and resolves the session it
// represents. Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, token string) (*appctx.Session, error)
}

// SessionClaims are the JWT claims the webmail host places in its
// session tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256-signed session tokens issued by the
// webmail host.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier creates a verifier for the given shared secret.
// issuer, when non-empty, must match the token's iss claim.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*appctx.Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var claims SessionClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &appctx.Session{AccountID: claims.Subject, Token: token}, nil
}
