package auth

// Principal is an authenticated identity with its authoritative role set,
// resolved per request. It is always threaded through calls as a value and
// never cached in process-wide state, so concurrent requests cannot observe
// each other's identity.
type Principal struct {
	ID             string
	OrganizationID string
	Roles          RoleSet
}

// NewPrincipal constructs a principal for a user with the given roles.
func NewPrincipal(user *User, roles RoleSet) Principal {
	return Principal{
		ID:             user.ID,
		OrganizationID: user.OrganizationID,
		Roles:          roles,
	}
}

// HasRole reports whether the principal carries the role.
func (p Principal) HasRole(role Role) bool {
	return p.Roles.Has(role)
}

// Elevated reports whether the principal bypasses resource-membership checks.
func (p Principal) Elevated() bool {
	return p.HasRole(RoleSystemAdmin)
}
