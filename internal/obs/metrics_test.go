package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/auth/login":              "/v1/auth/login",
		"/v1/cases/01ABCDEF":          "/v1/cases/:id",
		"/v1/cases/01ABCDEF/members":  "/v1/cases/:id/members",
		"/v1/cases/01ABCDEF/extra":    "/v1/cases/01ABCDEF/extra",
		"/v1/clients/abc":             "/v1/clients/:id",
		"/v1/reports/r-9/share":       "/v1/reports/:id/share",
		"/v1/listings?profession=ot":  "/v1/listings",
		"/v1/listings/l-1":            "/v1/listings/:id",
		"/v1/unknown/abc":             "/v1/unknown/abc",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
