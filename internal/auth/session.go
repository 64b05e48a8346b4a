package auth

import (
	"errors"
	"net/http"

	"finlern/internal/csrf"

	"github.com/gorilla/sessions"
)

const (
	sessionName     = "finlern-session"
	csrfSessionKey  = "csrf_token"
	subjectKey      = "user_sub"
	emailKey        = "user_email"
	nameKey         = "user_name"
	roleKey         = "user_role"
	sessionLifetime = 3600 * 8
)

// Sessions is a cookie session store. It holds the CSRF token for every
// visitor and, when used as a Provider, the signed-in identity.
type Sessions struct {
	store *sessions.CookieStore
}

var _ Provider = (*Sessions)(nil)

// NewSessions creates a cookie store signed with secret.
func NewSessions(secret string, secure bool) (*Sessions, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionLifetime,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store}, nil
}

func (s *Sessions) Name() string { return ProviderSession }

// Identify reads the identity written by SetIdentity.
func (s *Sessions) Identify(r *http.Request) (Identity, error) {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		// a cookie that fails verification was tampered with or signed by an old key
		if _, cookieErr := r.Cookie(sessionName); cookieErr == nil {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, ErrNoIdentity
	}
	sub, _ := session.Values[subjectKey].(string)
	if sub == "" {
		return Identity{}, ErrNoIdentity
	}
	id := Identity{Subject: sub}
	id.Email, _ = session.Values[emailKey].(string)
	id.Name, _ = session.Values[nameKey].(string)
	id.Role, _ = session.Values[roleKey].(string)
	return id, nil
}

// SetIdentity signs id into the session cookie.
func (s *Sessions) SetIdentity(w http.ResponseWriter, r *http.Request, id Identity) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[subjectKey] = id.Subject
	session.Values[emailKey] = id.Email
	session.Values[nameKey] = id.Name
	session.Values[roleKey] = id.Role
	return session.Save(r, w)
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// CSRFToken returns the token stored in the session, or "".
func (s *Sessions) CSRFToken(r *http.Request) string {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return ""
	}
	token, _ := session.Values[csrfSessionKey].(string)
	return token
}

// EnsureCSRFToken returns the session's CSRF token, creating and saving one
// when the session has none.
func (s *Sessions) EnsureCSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	session, _ := s.store.Get(r, sessionName)
	if token, ok := session.Values[csrfSessionKey].(string); ok && token != "" {
		return token, nil
	}

	token, err := csrf.NewToken()
	if err != nil {
		return "", err
	}
	session.Values[csrfSessionKey] = token
	if err := session.Save(r, w); err != nil {
		return "", err
	}
	return token, nil
}
