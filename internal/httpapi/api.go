// Package httpapi is the HTTP layer: routing, the middleware chain and the
// authentication endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"paltransport.org/api/spec"
	"paltransport.org/internal/audit"
	"paltransport.org/internal/identity"
	"paltransport.org/internal/oauth"
	"paltransport.org/internal/obs"
	"paltransport.org/internal/ratelimit"
	"paltransport.org/internal/token"
)

// ReadyProbe checks the process is ready to serve (database reachable).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// CodeExchanger is the outbound OAuth surface the google endpoint needs.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, providerToken string) (oauth.Profile, error)
}

// AccountFederator maps a provider profile onto a local identity.
type AccountFederator interface {
	ResolveOrCreate(ctx context.Context, p oauth.Profile) (identity.Identity, error)
}

// Deps bundles everything the HTTP layer is wired with.
type Deps struct {
	Tokens    *token.Service
	Accounts  *identity.Service
	Resolver  *identity.Resolver
	OAuth     CodeExchanger
	Federator AccountFederator
	Limiter   *ratelimit.Limiter
	Audit     *audit.Recorder
	Ready     ReadyProbe
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	tokens     *token.Service
	accounts   *identity.Service
	resolver   *identity.Resolver
	oauth      CodeExchanger
	federator  AccountFederator
	limiter    *ratelimit.Limiter
	audit      *audit.Recorder
	readyProbe ReadyProbe
	version    string
}

func New(d Deps, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		tokens:     d.Tokens,
		accounts:   d.Accounts,
		resolver:   d.Resolver,
		oauth:      d.OAuth,
		federator:  d.Federator,
		limiter:    d.Limiter,
		audit:      d.Audit,
		readyProbe: d.Ready,
		version:    version,
	}

	a.mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/v1/auth/google", a.handleGoogle)
	a.mux.HandleFunc("/api/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/api/v1/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})

	return a
}

// Handler assembles the middleware chain around the mux. Order matters:
// metrics see every request, rate limiting runs before token parsing so
// rejected requests stay cheap, and authentication runs last so handlers
// always see the final request context.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = a.rateLimit(h)
	h = SecurityHeaders(h)
	h = a.logging(h)
	h = a.requestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pal-transport-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}
