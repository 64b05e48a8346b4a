package handlers

import (
	"net/http"
	"strings"

	"finlern/internal/apierror"
	"finlern/internal/csrf"
	"finlern/internal/policy"
)

// UserInfo returns the caller's identity.
func (h *Handlers) UserInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requirePermission(w, r, policy.ActionRead, policy.ResourceProfile)
	if !ok {
		return
	}
	apierror.WriteJSON(w, http.StatusOK, id)
}

type authErrorInfo struct {
	name    string
	code    string
	message string
}

var authErrors = map[string]authErrorInfo{
	"configuration": {"Configuration", "CONFIGURATION", "There is a problem with the server configuration. Please contact support."},
	"accessdenied":  {"AccessDenied", "ACCESS_DENIED", "You do not have permission to sign in."},
	"verification":  {"Verification", "VERIFICATION", "The sign-in link is no longer valid. It may have been used already or it may have expired."},
	"default":       {"Default", "DEFAULT", "Unable to sign in. Please try again."},
}

// AuthError explains an identity provider error code. Unknown codes are
// reported as Default.
func (h *Handlers) AuthError(w http.ResponseWriter, r *http.Request) {
	key := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("error")))
	info, ok := authErrors[key]
	if !ok {
		info = authErrors["default"]
	}
	apierror.WriteJSON(w, http.StatusOK, struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}{Error: info.name, Message: info.message, Code: info.code})
}

// CSRFToken issues the token the form echoes back in X-CSRF-Token. With
// sessions the token is stored in the session cookie.
func (h *Handlers) CSRFToken(w http.ResponseWriter, r *http.Request) {
	var (
		token string
		err   error
	)
	if h.sessions != nil {
		token, err = h.sessions.EnsureCSRFToken(w, r)
	} else {
		token, err = csrf.NewToken()
	}
	if err != nil {
		h.logger.Error(r.Context(), err, "issue csrf token")
		apierror.UpstreamUnavailable("Could not issue a token.").WriteJSON(w)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	apierror.WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}
