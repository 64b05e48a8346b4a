// Package csrf decides whether a state-changing request came from a trusted
// origin.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var ErrForbidden = errors.New("csrf: untrusted request origin")

// Config describes the trusted origin.
type Config struct {
	// TrustedHost is the public host (optionally with port) the site is served from.
	TrustedHost string
	// AllowedSchemes defaults to https only.
	AllowedSchemes []string
	// Development enables localhost trust in builds that allow it.
	Development bool
	// StrictToken requires an explicit token to match the session token.
	StrictToken bool
}

// Request holds the inputs of one decision.
type Request struct {
	Method       string
	Origin       string
	Referer      string
	Token        string
	SessionToken string
	// Bypass skips validation for receivers that authenticate by other means.
	Bypass bool
	// EnforceSafe validates GET/HEAD/OPTIONS as well.
	EnforceSafe bool
}

// Reason names the rule that admitted a request.
type Reason string

const (
	ReasonSafeMethod Reason = "safe_method"
	ReasonBypass     Reason = "bypass"
	ReasonOrigin     Reason = "origin"
	ReasonReferer    Reason = "referer"
	ReasonToken      Reason = "token"
	ReasonLocalhost  Reason = "localhost"
)

type Validator struct {
	host      string
	schemes   map[string]struct{}
	localhost bool
	strict    bool
}

// New builds a validator. The trusted host is normalized to its ASCII form.
func New(cfg Config) (*Validator, error) {
	host, err := normalizeHost(cfg.TrustedHost)
	if err != nil {
		return nil, fmt.Errorf("trusted host %q: %w", cfg.TrustedHost, err)
	}
	if host == "" {
		return nil, errors.New("trusted host is required")
	}

	schemes := cfg.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"https"}
	}
	set := make(map[string]struct{}, len(schemes))
	for _, s := range schemes {
		set[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "://"))] = struct{}{}
	}

	return &Validator{
		host:      host,
		schemes:   set,
		localhost: cfg.Development && localhostTrustCompiled,
		strict:    cfg.StrictToken,
	}, nil
}

// Check admits req or returns ErrForbidden. The returned Reason names the
// rule that matched.
func (v *Validator) Check(req Request) (Reason, error) {
	if IsSafeMethod(req.Method) && !req.EnforceSafe {
		return ReasonSafeMethod, nil
	}
	if req.Bypass {
		return ReasonBypass, nil
	}

	if req.Origin != "" {
		if v.trustedOrigin(req.Origin) {
			return ReasonOrigin, nil
		}
		if v.localhost && isLocalhost(req.Origin) {
			return ReasonLocalhost, nil
		}
	}
	if req.Referer != "" {
		if v.trustedReferer(req.Referer) {
			return ReasonReferer, nil
		}
		if v.localhost && isLocalhost(req.Referer) {
			return ReasonLocalhost, nil
		}
	}
	if v.tokenOK(req.Token, req.SessionToken) {
		return ReasonToken, nil
	}
	return "", ErrForbidden
}

// LocalhostTrusted reports whether the development relaxation is active.
func (v *Validator) LocalhostTrusted() bool {
	return v.localhost
}

// IsSafeMethod reports GET, HEAD and OPTIONS.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// NewToken returns a random token suitable for storing in a session.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (v *Validator) trustedOrigin(origin string) bool {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return false
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.User != nil {
		return false
	}
	return v.sameSite(u)
}

func (v *Validator) trustedReferer(referer string) bool {
	u, err := url.Parse(strings.TrimSpace(referer))
	if err != nil || u.Host == "" || u.User != nil {
		return false
	}
	if !strings.HasPrefix(u.Path, "/") {
		return false
	}
	return v.sameSite(u)
}

func (v *Validator) sameSite(u *url.URL) bool {
	if _, ok := v.schemes[strings.ToLower(u.Scheme)]; !ok {
		return false
	}
	host, err := normalizeHost(u.Host)
	if err != nil {
		return false
	}
	return host == v.host
}

func (v *Validator) tokenOK(token, session string) bool {
	if token == "" {
		return false
	}
	if !v.strict {
		return true
	}
	if session == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(session)) == 1
}

func isLocalhost(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1":
		return true
	default:
		return false
	}
}

func normalizeHost(hostport string) (string, error) {
	hostport = strings.ToLower(strings.TrimSpace(hostport))
	if hostport == "" {
		return "", nil
	}

	host, port := hostport, ""
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		host, port = h, p
	}
	host = strings.TrimSuffix(host, ".")

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", err
		}
		host = ascii
	} else {
		host = ip.String()
	}

	if port != "" {
		return net.JoinHostPort(host, port), nil
	}
	return host, nil
}
