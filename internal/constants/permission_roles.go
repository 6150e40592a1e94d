package constants

// PermissionRoles maps each permission to the roles allowed to perform it.
// Membership gates (active monthly subscription) are layered on top by the
// services; this table is role-only.
var PermissionRoles = map[string][]string{
	ViewData:          {Member, Admin, Superadmin},
	SubmitProject:     {Member, Admin, Superadmin},
	CastVote:          {Member, Admin, Superadmin},
	TransitionProject: {Admin, Superadmin},
	ArchiveProject:    {Admin, Superadmin},
	ViewAuditTrail:    {Admin, Superadmin},
	AssignRole:        {Superadmin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
