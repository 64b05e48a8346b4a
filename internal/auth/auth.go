// Package auth resolves the caller's identity from the configured provider
// and verifies the admin API key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoIdentity means the request carried no credentials.
	ErrNoIdentity = errors.New("no identity")
	// ErrInvalidToken means credentials were presented but rejected.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Provider resolves an Identity from a request.
type Provider interface {
	Name() string
	Identify(r *http.Request) (Identity, error)
}

// Provider names.
const (
	ProviderNone    = "none"
	ProviderSession = "session"
	ProviderJWT     = "jwt"
)

// Config selects and configures a provider.
type Config struct {
	Provider  string
	JWTSecret string
	JWTIssuer string
}

// NewProvider returns the provider named in cfg. The session provider reuses
// sessions, which is also where CSRF tokens live.
func NewProvider(cfg Config, sessions *Sessions) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderNone:
		return NoneProvider{}, nil
	case ProviderSession:
		if sessions == nil {
			return nil, errors.New("session provider requires a session store")
		}
		return sessions, nil
	case ProviderJWT:
		return NewJWTProvider(cfg.JWTSecret, cfg.JWTIssuer)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

// NoneProvider never identifies anyone.
type NoneProvider struct{}

func (NoneProvider) Name() string { return ProviderNone }

func (NoneProvider) Identify(*http.Request) (Identity, error) {
	return Identity{}, ErrNoIdentity
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.Subject == "" {
		return Identity{}, false
	}
	return id, true
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
