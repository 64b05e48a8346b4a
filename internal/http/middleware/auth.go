package middleware

import (
	"context"
	"errors"
	"net/http"

	"finlern/internal/apierror"
	"finlern/internal/auth"
	"finlern/internal/logging"
	"finlern/internal/policy"
)

const identityErrKey contextKey = "identity_err"

// Identify resolves the caller through provider without rejecting anyone.
// A presented but invalid credential is remembered for RequireIdentity.
func Identify(provider auth.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := provider.Identify(r)
			ctx := r.Context()
			switch {
			case err == nil:
				ctx = auth.WithIdentity(ctx, id)
			case errors.Is(err, auth.ErrInvalidToken):
				ctx = context.WithValue(ctx, identityErrKey, err)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireIdentity answers 401 without credentials and 403 with invalid ones.
func RequireIdentity(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.IdentityFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			if err, ok := r.Context().Value(identityErrKey).(error); ok {
				logging.LogSecurityEvent(r.Context(), logger, "auth_invalid",
					"path", r.URL.Path,
					"client_ip", ClientIP(r),
					"error", err.Error(),
				)
				apierror.AuthInvalid("Your session is invalid or has expired.").WriteJSON(w)
				return
			}
			apierror.AuthRequired("").WriteJSON(w)
		})
	}
}

// AdminKeyIdentity is the caller attached to requests carrying the admin key.
var AdminKeyIdentity = auth.Identity{Subject: "admin-api-key", Role: policy.RoleAdmin}

// RequireAdminKey guards admin endpoints with the bearer admin key and acts
// as AdminKeyIdentity afterwards. A nil key rejects every request.
func RequireAdminKey(key *auth.AdminKey, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := auth.BearerToken(r)
			if presented == "" {
				apierror.AuthRequired("Admin API key required.").WriteJSON(w)
				return
			}
			if key == nil || !key.Verify(presented) {
				logging.LogSecurityEvent(r.Context(), logger, "admin_key_rejected",
					"path", r.URL.Path,
					"client_ip", ClientIP(r),
				)
				apierror.AuthInvalid("Invalid admin API key.").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), AdminKeyIdentity)))
		})
	}
}
