package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleStudent          = "student"
	RoleTeacher          = "teacher"
	RoleDepartmentAdmin  = "department_admin"
	RoleInstitutionAdmin = "institution_admin"
	RoleSystemAdmin      = "system_admin"
)

// Permission names carried in token claims.
const (
	// PermCrossDepartmentAccess lets a non-admin actor reach departments other
	// than their own within the same institution.
	PermCrossDepartmentAccess = "cross_department_access"
)

// IsSystemAdmin reports whether the role bypasses tenant isolation entirely.
func IsSystemAdmin(role string) bool { return role == RoleSystemAdmin }

// IsInstitutionAdmin reports whether the role crosses department boundaries
// freely within its own institution.
func IsInstitutionAdmin(role string) bool { return role == RoleInstitutionAdmin }

// IsKnownRole guards against unrecognized role strings arriving via tokens.
func IsKnownRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleDepartmentAdmin, RoleInstitutionAdmin, RoleSystemAdmin:
		return true
	default:
		return false
	}
}

// HasPermission checks a permission set for an exact grant.
func HasPermission(permissions []string, perm string) bool {
	for _, p := range permissions {
		if p == perm {
			return true
		}
	}
	return false
}
