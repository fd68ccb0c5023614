/*
auth.go - Bearer-token principal extraction

PURPOSE:
  Verifies HS256 bearer tokens and places the caller's Principal on the
  request context. Token issuance belongs to the identity provider; this
  service only verifies.

CLAIMS:
  {
    "sub":      "alice",        // username
    "username": "alice",        // optional, preferred over sub
    "role":     "counsellor",   // admin | counsellor
    "exp":      1767225600
  }

RESPONSES:
  401: missing, malformed, expired or badly signed token, unknown role
  403: RequireAdmin on a non-admin principal

SEE ALSO:
  - server.go: where the middleware is mounted
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/staffing-engine/staffing"
)

// Claims is the expected token payload.
type Claims struct {
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal returns the caller identity carried by the claims.
func (c *Claims) Principal() (staffing.Principal, error) {
	username := c.Username
	if username == "" {
		username = c.Subject
	}
	if strings.TrimSpace(username) == "" {
		return staffing.Principal{}, errors.New("token has no subject")
	}
	role := staffing.Role(c.Role)
	if !role.Valid() {
		return staffing.Principal{}, fmt.Errorf("unknown role %q", c.Role)
	}
	return staffing.Principal{Username: username, Role: role}, nil
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p staffing.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (staffing.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(staffing.Principal)
	return p, ok
}

// Authenticator verifies bearer tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses a raw token and returns its principal.
func (a *Authenticator) Verify(raw string) (staffing.Principal, error) {
	claims := &Claims{}
	token, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return staffing.Principal{}, err
	}
	if !token.Valid {
		return staffing.Principal{}, errors.New("invalid token")
	}
	return claims.Principal()
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		p, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin allows only admin principals through.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
			return
		}
		if !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
