package handlers

import (
	"net/http"

	"finlern/internal/apierror"
	"finlern/internal/auth"
	"finlern/internal/logging"
	"finlern/internal/policy"
)

func currentIdentity(r *http.Request) (auth.Identity, bool) {
	return auth.IdentityFromContext(r.Context())
}

// requirePermission writes 401 without an identity and 403 when the policy
// denies action on resource.
func (h *Handlers) requirePermission(w http.ResponseWriter, r *http.Request, action policy.Action, resource policy.Resource) (auth.Identity, bool) {
	id, ok := currentIdentity(r)
	if !ok {
		apierror.AuthRequired("").WriteJSON(w)
		return auth.Identity{}, false
	}
	if !policy.Allow(id, action, resource) {
		logging.LogSecurityEvent(r.Context(), h.logger, "permission_denied",
			"sub", id.Subject,
			"role", id.Role,
			"action", string(action),
			"resource", string(resource),
		)
		apierror.AuthInvalid("You do not have access to this resource.").WriteJSON(w)
		return id, false
	}
	return id, true
}
