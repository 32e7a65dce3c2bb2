// Package auth resolves the username behind a gateway connection from the
// bearer token presented on the upgrade request.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when the request carries no token.
	ErrMissingToken = errors.New("auth: missing token")
	// ErrInvalidToken is returned when the token fails verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Resolver maps an upgrade request to the username it is authenticated as.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(r *http.Request) (string, error) {
	return f(r)
}

// TokenResolver verifies HS256 JWTs whose subject is the username. The
// token is read from "Authorization: Bearer" or, for browsers that cannot set
// headers on a WebSocket upgrade, from the "token" query parameter.
type TokenResolver struct {
	secret []byte
	now    func() time.Time
}

// NewTokenResolver builds a resolver for tokens signed with secret.
func NewTokenResolver(secret []byte) (*TokenResolver, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth: token secret is required")
	}
	return &TokenResolver{secret: secret, now: time.Now}, nil
}

// Resolve implements Resolver.
func (tr *TokenResolver) Resolve(r *http.Request) (string, error) {
	token := tokenFromHeader(r.Header)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return tr.Verify(token)
}

// Verify checks a raw token and returns its subject.
func (tr *TokenResolver) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return tr.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tr.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	username := strings.TrimSpace(claims.Subject)
	if username == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return username, nil
}

func tokenFromHeader(h http.Header) string {
	value := strings.TrimSpace(h.Get("Authorization"))
	if len(value) < len("Bearer ") || !strings.EqualFold(value[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("Bearer "):])
}
