package httpapi

import (
	"net/http"
	"strings"

	"careportal.org/internal/auth"
	"careportal.org/internal/obs"
)

// privateKinds are resource kinds whose existence must not leak to outsiders:
// a non-member reading one gets 404, exactly like a missing resource.
var privateKinds = map[auth.ResourceKind]struct{}{
	auth.KindCase:          {},
	auth.KindClientProfile: {},
	auth.KindReport:        {},
	auth.KindFile:          {},
}

// requireAccess runs the policy check and writes the deny response. Returns
// true when the request may proceed.
func (a *API) requireAccess(w http.ResponseWriter, r *http.Request, action auth.Action, resource auth.ResourceDescriptor) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return false
	}
	decision := a.svc.Authorize(r.Context(), principal, action, resource)
	obs.ObserveAccessDecision(decision.Allowed, string(decision.Reason))
	if decision.Allowed {
		return true
	}

	switch decision.Reason {
	case auth.ReasonResourceNotFound:
		writeError(w, r, http.StatusNotFound, "resource not found")
	case auth.ReasonNotMember:
		if _, private := privateKinds[resource.Kind]; private && action == auth.ActionRead {
			writeError(w, r, http.StatusNotFound, "resource not found")
		} else {
			writeError(w, r, http.StatusForbidden, "access denied")
		}
	default:
		writeError(w, r, http.StatusForbidden, "access denied")
	}
	return false
}

// handleCase serves GET and PUT on /v1/cases/{id}, guarded by the policy.
func (a *API) handleCase(w http.ResponseWriter, r *http.Request) {
	if a.cases == nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/cases/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	resource, err := a.cases.Resolve(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "resource lookup failed")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.requireAccess(w, r, auth.ActionRead, resource) {
			return
		}
		principal, _ := auth.PrincipalFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"id":              resource.ID,
			"organization_id": resource.OrganizationID,
			"membership":      string(resource.Members[principal.ID]),
		})
	case http.MethodPut:
		if !a.requireAccess(w, r, auth.ActionUpdate, resource) {
			return
		}
		var body map[string]any
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     resource.ID,
			"status": "updated",
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
