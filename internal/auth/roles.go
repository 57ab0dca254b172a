package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the closed set of portal-wide roles a user can hold. Roles arrive
// from the authoritative store per request; strings outside this set are
// rejected rather than defaulted.
type Role string

const (
	RoleSystemAdmin Role = "system_admin"
	RoleOrgAdmin    Role = "org_admin"
	RoleTherapist   Role = "therapist"
	RoleCaseManager Role = "case_manager"
	RoleClient      Role = "client"
	RoleCarer       Role = "carer"
	RoleOther       Role = "other"
)

// IsValid reports whether the role is one of the predefined portal roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystemAdmin, RoleOrgAdmin, RoleTherapist, RoleCaseManager, RoleClient, RoleCarer, RoleOther:
		return true
	default:
		return false
	}
}

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(s)))
	if !role.IsValid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return role, nil
}

// ParseRoles converts stored role strings, deduplicating along the way.
func ParseRoles(values []string) (RoleSet, error) {
	set := make(RoleSet, len(values))
	for _, v := range values {
		role, err := ParseRole(v)
		if err != nil {
			return nil, err
		}
		set[role] = struct{}{}
	}
	return set, nil
}

// RoleSet is the flat per-principal role collection. There is no hierarchy
// beyond the explicit elevation rules in the policy evaluator.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// Strings returns the sorted role names, suitable for claims and logs.
func (s RoleSet) Strings() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

// MembershipRole is the per-resource role a principal holds inside a
// resource's member set. It decides which actions membership grants.
type MembershipRole string

const (
	MemberOwner       MembershipRole = "owner"
	MemberManager     MembershipRole = "manager"
	MemberContributor MembershipRole = "contributor"
	MemberViewer      MembershipRole = "viewer"
)

var membershipCapabilities = map[MembershipRole]map[Action]struct{}{
	MemberOwner:       actionSet(ActionRead, ActionUpdate, ActionDelete, ActionShare),
	MemberManager:     actionSet(ActionRead, ActionUpdate, ActionShare),
	MemberContributor: actionSet(ActionRead, ActionUpdate),
	MemberViewer:      actionSet(ActionRead),
}

func actionSet(actions ...Action) map[Action]struct{} {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// Can reports whether this membership role grants the action.
func (m MembershipRole) Can(action Action) bool {
	caps, ok := membershipCapabilities[m]
	if !ok {
		return false
	}
	_, ok = caps[action]
	return ok
}

// ReadOnly reports whether the role grants no mutating capability at all.
func (m MembershipRole) ReadOnly() bool {
	return m == MemberViewer
}

// IsValid reports whether the membership role is known.
func (m MembershipRole) IsValid() bool {
	_, ok := membershipCapabilities[m]
	return ok
}

// ParseMembershipRole converts a stored membership role string.
func ParseMembershipRole(s string) (MembershipRole, error) {
	role := MembershipRole(strings.TrimSpace(strings.ToLower(s)))
	if !role.IsValid() {
		return "", fmt.Errorf("%w: unknown membership role %q", ErrInvalidInput, s)
	}
	return role, nil
}
