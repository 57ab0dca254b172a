// Package httpapi is the HTTP surface of the care portal: authentication
// endpoints, guarded resource routes and operational probes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"careportal.org/api/spec"
	"careportal.org/internal/auth"
	"careportal.org/internal/obs"
	"careportal.org/internal/stream"
)

// ReadyProbe answers readiness checks, typically by pinging the database.
type ReadyProbe struct {
	Check func(ctx context.Context) error
}

func (rp ReadyProbe) check(ctx context.Context) error {
	if rp.Check == nil {
		return nil
	}
	return rp.Check(ctx)
}

// CaseStore is the portal-data dependency of the case routes: it resolves a
// case into a policy descriptor and reads/writes the case payloads the API
// serves. The auth layer owns the decision; this interface owns the data.
type CaseStore interface {
	Resolve(ctx context.Context, id string) (auth.ResourceDescriptor, error)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	cases      CaseStore
	events     *stream.Stream
	readyProbe ReadyProbe
	version    string
}

// Option configures the API.
type Option func(*API)

// WithReadyProbe wires the readiness check.
func WithReadyProbe(rp ReadyProbe) Option {
	return func(a *API) { a.readyProbe = rp }
}

// WithCaseStore wires the case resource routes.
func WithCaseStore(cases CaseStore) Option {
	return func(a *API) { a.cases = cases }
}

// WithAuditStream wires the live audit event feed.
func WithAuditStream(events *stream.Stream) Option {
	return func(a *API) { a.events = events }
}

// New builds the router. The auth service is mandatory; everything else is
// optional wiring.
func New(svc *auth.Service, version string, opts ...Option) *API {
	a := &API{
		mux:     http.NewServeMux(),
		svc:     svc,
		version: version,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth flows; login is rate limited separately from the global limiter
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 5, 1))
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/logout_all", a.handleLogoutAll)
	a.mux.HandleFunc("/v1/auth/password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	// guarded resources
	a.mux.HandleFunc("/v1/cases/", a.handleCase)

	// live audit feed for administrators
	a.mux.HandleFunc("/v1/audit/events", a.handleAuditEvents)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = obs.Instrument(h)
	h = RequestID(h)
	return h
}

// --- operational handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "careportal-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "careportal-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}
