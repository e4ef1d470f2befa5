package auth

// Portal roles, least to most privileged.
const (
	RoleCitizen        = "citizen"
	RoleOfficer        = "officer"
	RoleDepartmentHead = "department_head"
	RoleAdmin          = "admin"
)

var roles = map[string]struct{}{
	RoleCitizen:        {},
	RoleOfficer:        {},
	RoleDepartmentHead: {},
	RoleAdmin:          {},
}

// ValidRole reports whether r is one of the portal roles.
func ValidRole(r string) bool {
	_, ok := roles[r]
	return ok
}

// Is reports whether the principal holds the given role.
func (p Principal) Is(role string) bool { return p.Role == role }

// IsAdmin reports whether the principal is an administrator.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanReview reports whether the principal may decide service requests.
// Officers, department heads and admins all may.
func (p Principal) CanReview() bool {
	switch p.Role {
	case RoleOfficer, RoleDepartmentHead, RoleAdmin:
		return true
	}
	return false
}
