package constants

const (
	Superadmin = "superadmin"
	Admin      = "admin"
	Member     = "member"
)

// ValidRoles is the set of allowed values for users.role.
var ValidRoles = []string{Member, Admin, Superadmin}

// IsValidRole returns true if role is one of the allowed values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin returns true for the two administrative roles.
func IsAdmin(role string) bool {
	return role == Admin || role == Superadmin
}
