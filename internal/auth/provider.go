// Package auth yields the current session token and user identity for the
// chat client. Visitors may be anonymous (no token); signed-in users carry
// a platform-issued JWT whose subject is the user id.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the platform session token claims.
type Claims struct {
	jwt.RegisteredClaims
	ProfileID string `json:"profile_id,omitempty"`
}

// Provider holds one session's credentials. It implements the TokenSource
// contract used by the REST clients. The zero value is an anonymous
// session.
type Provider struct {
	token  string
	claims *Claims
}

// Anonymous returns a Provider with no credentials.
func Anonymous() *Provider {
	return &Provider{}
}

// NewProvider parses the session token without signature verification and
// keeps its claims. The chat service verifies the signature on every call;
// the client only needs the identity for display and request metadata. An
// empty token yields an anonymous provider.
func NewProvider(token string) (*Provider, error) {
	if token == "" {
		return Anonymous(), nil
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("auth: parse session token: %w", err)
	}
	return &Provider{token: token, claims: claims}, nil
}

// NewVerifiedProvider parses and verifies the session token against the
// platform's JWKS endpoint. Used when JWKS_ENDPOINT is configured, so a
// stale or tampered token fails at startup instead of on the first call.
func NewVerifiedProvider(ctx context.Context, token, jwksURL, audience, issuer string) (*Provider, error) {
	if token == "" {
		return nil, fmt.Errorf("auth: token is required for verification")
	}

	jwksCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	k, err := keyfunc.NewDefaultCtx(jwksCtx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("auth: create JWKS keyfunc: %w", err)
	}

	opts := []jwt.ParserOption{}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, k.Keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: verify session token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("auth: invalid session token")
	}
	return &Provider{token: token, claims: claims}, nil
}

// Token returns the raw bearer token, empty for anonymous sessions.
func (p *Provider) Token() string {
	if p == nil {
		return ""
	}
	return p.token
}

// UserID returns the authenticated user id (the token subject), empty for
// anonymous sessions.
func (p *Provider) UserID() string {
	if p == nil || p.claims == nil {
		return ""
	}
	return p.claims.Subject
}

// ProfileID returns the profile id claim, if the token carries one.
func (p *Provider) ProfileID() string {
	if p == nil || p.claims == nil {
		return ""
	}
	return p.claims.ProfileID
}

// IsAnonymous reports whether this session has no credentials.
func (p *Provider) IsAnonymous() bool {
	return p.Token() == ""
}
