package policy

import (
	"strings"

	"finlern/internal/auth"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionExport Action = "export"
)

type Resource string

const (
	ResourceProfile     Resource = "profile"
	ResourceEnrollments Resource = "enrollments"
)

// RoleAdmin may do everything. Requests authenticated with the admin API
// key act with this role.
const RoleAdmin = "admin"

const (
	roleSuperAdmin = "internal_super_admin"
	roleStaff      = "staff"
	roleStudent    = "student"
	roleUser       = "user"
)

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func IsSuperAdmin(id auth.Identity) bool {
	return normalizeRole(id.Role) == roleSuperAdmin
}

// Allow reports whether id may perform action on resource. An identity
// without a role is treated as a plain user.
func Allow(id auth.Identity, action Action, resource Resource) bool {
	if id.Subject == "" {
		return false
	}
	if IsSuperAdmin(id) {
		return true
	}

	role := normalizeRole(id.Role)
	if role == "" {
		role = roleUser
	}
	actionKey := Action(strings.ToLower(strings.TrimSpace(string(action))))
	resourceKey := Resource(strings.ToLower(strings.TrimSpace(string(resource))))
	return defaultAllowByRole(role, actionKey, resourceKey)
}

func defaultAllowByRole(role string, action Action, resource Resource) bool {
	switch role {
	case RoleAdmin:
		return true
	case roleStaff:
		switch resource {
		case ResourceProfile:
			return action == ActionRead
		case ResourceEnrollments:
			return action == ActionRead
		default:
			return false
		}
	case roleStudent, roleUser:
		return resource == ResourceProfile && action == ActionRead
	default:
		return false
	}
}
