package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"careportal.org/internal/auth"
	"careportal.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// accessTokenHeader is the fallback for clients that cannot set an
	// Authorization header (legacy portal frontends).
	accessTokenHeader = "X-Access-Token"
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/openapi.yaml",
	"/",
}

// withAuth authenticates every non-public request and stores the resulting
// principal in the request context. Roles are resolved from the store on each
// request, so a revoked role takes effect immediately.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.svc.Authenticate(r.Context(), token)
		if err != nil {
			obs.ObserveTokenVerification(verificationResult(err))
			writeError(w, r, authFailureStatus(err), authFailureMessage(err))
			return
		}
		obs.ObserveTokenVerification("ok")

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		return extractBearerToken(header)
	}
	if token := strings.TrimSpace(r.Header.Get(accessTokenHeader)); token != "" {
		return token, nil
	}
	return "", errors.New("missing bearer token")
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func authFailureStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrMalformedToken),
		errors.Is(err, auth.ErrBadSignature),
		errors.Is(err, auth.ErrBadPayload),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpired):
		return "token expired"
	case errors.Is(err, auth.ErrMalformedToken),
		errors.Is(err, auth.ErrBadSignature),
		errors.Is(err, auth.ErrBadPayload):
		return "invalid token"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "authentication error"
	}
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrMalformedToken):
		return "malformed"
	case errors.Is(err, auth.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, auth.ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, auth.ErrExpired):
		return "expired"
	default:
		return "error"
	}
}
