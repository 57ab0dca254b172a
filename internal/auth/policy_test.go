package auth

import "testing"

func testPrincipal(id, org string, roles ...Role) Principal {
	return Principal{ID: id, OrganizationID: org, Roles: NewRoleSet(roles...)}
}

func caseResource(org string, members map[string]MembershipRole) ResourceDescriptor {
	return ResourceDescriptor{
		Kind:           KindCase,
		ID:             "case-1",
		OrganizationID: org,
		Members:        members,
	}
}

func TestEvaluateRuleOrder(t *testing.T) {
	admin := testPrincipal("admin", "", RoleSystemAdmin)
	orgAdmin := testPrincipal("org-admin", "org-1", RoleOrgAdmin)
	therapist := testPrincipal("therapist", "org-1", RoleTherapist)
	client := testPrincipal("client", "org-1", RoleClient)

	resource := caseResource("org-1", map[string]MembershipRole{
		"owner-user":       MemberOwner,
		"manager-user":     MemberManager,
		"contributor-user": MemberContributor,
		"viewer-user":      MemberViewer,
	})

	tests := []struct {
		name      string
		principal Principal
		action    Action
		resource  ResourceDescriptor
		allowed   bool
		reason    DenyReason
	}{
		{"system admin reads anything", admin, ActionRead, resource, true, ""},
		{"system admin deletes anything", admin, ActionDelete, resource, true, ""},
		{"org admin same org", orgAdmin, ActionUpdate, resource, true, ""},
		{"org admin other org", orgAdmin, ActionRead, caseResource("org-2", nil), false, ReasonNotMember},
		{"therapist reads listings without membership", therapist, ActionRead,
			ResourceDescriptor{Kind: KindListing, ID: "listing-1", OrganizationID: "org-2"}, true, ""},
		{"therapist cannot mutate listings", therapist, ActionUpdate,
			ResourceDescriptor{Kind: KindListing, ID: "listing-1", OrganizationID: "org-2"}, false, ReasonNotMember},
		{"non-member denied", client, ActionRead, resource, false, ReasonNotMember},
		{"missing resource denied first", admin, ActionRead,
			ResourceDescriptor{Kind: KindCase, ID: "gone", Missing: true}, false, ReasonResourceNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.principal, tc.action, tc.resource)
			if got.Allowed != tc.allowed {
				t.Fatalf("allowed = %v, want %v (decision %+v)", got.Allowed, tc.allowed, got)
			}
			if !tc.allowed && got.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", got.Reason, tc.reason)
			}
		})
	}
}

func TestEvaluateMembershipCapabilities(t *testing.T) {
	resource := caseResource("org-1", map[string]MembershipRole{
		"owner-user":       MemberOwner,
		"manager-user":     MemberManager,
		"contributor-user": MemberContributor,
		"viewer-user":      MemberViewer,
	})

	tests := []struct {
		member  string
		action  Action
		allowed bool
		reason  DenyReason
	}{
		{"owner-user", ActionRead, true, ""},
		{"owner-user", ActionUpdate, true, ""},
		{"owner-user", ActionDelete, true, ""},
		{"owner-user", ActionShare, true, ""},
		{"manager-user", ActionUpdate, true, ""},
		{"manager-user", ActionShare, true, ""},
		{"manager-user", ActionDelete, false, ReasonInsufficientRole},
		{"contributor-user", ActionRead, true, ""},
		{"contributor-user", ActionUpdate, true, ""},
		{"contributor-user", ActionShare, false, ReasonInsufficientRole},
		{"contributor-user", ActionDelete, false, ReasonInsufficientRole},
		{"viewer-user", ActionRead, true, ""},
		{"viewer-user", ActionUpdate, false, ReasonReadOnlyRole},
		{"viewer-user", ActionDelete, false, ReasonReadOnlyRole},
		{"viewer-user", ActionShare, false, ReasonReadOnlyRole},
	}
	for _, tc := range tests {
		t.Run(tc.member+"/"+string(tc.action), func(t *testing.T) {
			principal := testPrincipal(tc.member, "org-2", RoleClient)
			got := Evaluate(principal, tc.action, resource)
			if got.Allowed != tc.allowed {
				t.Fatalf("allowed = %v, want %v (decision %+v)", got.Allowed, tc.allowed, got)
			}
			if !tc.allowed && got.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", got.Reason, tc.reason)
			}
		})
	}
}

func TestEvaluateIsPure(t *testing.T) {
	principal := testPrincipal("viewer-user", "org-1", RoleCarer)
	resource := caseResource("org-1", map[string]MembershipRole{"viewer-user": MemberViewer})

	first := Evaluate(principal, ActionUpdate, resource)
	for i := 0; i < 5; i++ {
		if got := Evaluate(principal, ActionUpdate, resource); got != first {
			t.Fatalf("evaluation %d differed: %+v vs %+v", i, got, first)
		}
	}
	if first.Allowed || first.Reason != ReasonReadOnlyRole {
		t.Fatalf("unexpected decision %+v", first)
	}
}
