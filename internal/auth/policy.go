package auth

// ResourceKind identifies what kind of portal resource an access check is
// about.
type ResourceKind string

const (
	KindCase          ResourceKind = "case"
	KindClientProfile ResourceKind = "client_profile"
	KindReport        ResourceKind = "report"
	KindFile          ResourceKind = "file"
	KindListing       ResourceKind = "listing"
)

// Action is the operation a principal wants to perform on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionShare  Action = "share"
)

// Mutating reports whether the action changes the resource.
func (a Action) Mutating() bool {
	return a != ActionRead
}

// DenyReason explains a deny decision. The HTTP layer uses it to pick
// between 403 and 404-shaped responses without leaking resource existence.
type DenyReason string

const (
	ReasonNotMember        DenyReason = "not_member"
	ReasonInsufficientRole DenyReason = "insufficient_role"
	ReasonReadOnlyRole     DenyReason = "read_only_role"
	ReasonResourceNotFound DenyReason = "resource_not_found"
)

// ResourceDescriptor is the caller-resolved view of a resource the policy
// evaluator consumes. The evaluator never fetches anything itself; given the
// same descriptor it always returns the same decision.
type ResourceDescriptor struct {
	Kind           ResourceKind
	ID             string
	OrganizationID string
	// Members maps user ID to the membership role that user holds on this
	// resource. The resolver folds portal-specific relations (owner rows,
	// primary-therapist assignment) into these roles before the check.
	Members map[string]MembershipRole
	// Missing marks a failed lookup. Absence is an explicit deny, never a
	// permissive default.
	Missing bool
}

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Rule names the first rule that matched, for audit trails.
	Rule string
}

// Allow constructs an allow decision attributed to a rule.
func Allow(rule string) Decision {
	return Decision{Allowed: true, Rule: rule}
}

// Deny constructs a deny decision with a reason.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason, Rule: "default_deny"}
}

// blanketGrants lists role capabilities that apply to a resource kind without
// membership: therapists may browse listings (profession-matched feeds).
var blanketGrants = map[Role]map[ResourceKind]map[Action]struct{}{
	RoleTherapist: {
		KindListing: actionSet(ActionRead),
	},
}

// Evaluate is the single choke point answering "may principal P perform
// action A on resource R?". Rule order, first match wins:
//
//  1. system_admin bypasses membership entirely;
//  2. blanket grants: org_admin over resources of its own organization,
//     role/kind grants from blanketGrants;
//  3. resource-scoped membership with a role whose capability set includes
//     the action;
//  4. default deny.
func Evaluate(principal Principal, action Action, resource ResourceDescriptor) Decision {
	if resource.Missing {
		return Deny(ReasonResourceNotFound)
	}

	if principal.HasRole(RoleSystemAdmin) {
		return Allow("system_admin")
	}

	if principal.HasRole(RoleOrgAdmin) &&
		resource.OrganizationID != "" &&
		resource.OrganizationID == principal.OrganizationID {
		return Allow("org_admin")
	}
	for role := range principal.Roles {
		if kinds, ok := blanketGrants[role]; ok {
			if actions, ok := kinds[resource.Kind]; ok {
				if _, ok := actions[action]; ok {
					return Allow("blanket:" + string(role))
				}
			}
		}
	}

	membership, ok := resource.Members[principal.ID]
	if !ok {
		return Deny(ReasonNotMember)
	}
	if membership.Can(action) {
		return Decision{Allowed: true, Rule: "membership:" + string(membership)}
	}
	if action.Mutating() && membership.ReadOnly() {
		return Deny(ReasonReadOnlyRole)
	}
	return Deny(ReasonInsufficientRole)
}
