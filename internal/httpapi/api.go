// Package httpapi is the transport glue: routing, request decoding, error
// mapping and the admin trust boundary. Domain rules live in the services
// it wraps.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"keygate.org/internal/auth"
	"keygate.org/internal/catalog"
	"keygate.org/internal/ec2"
	"keygate.org/internal/identity"
	"keygate.org/internal/obs"
)

// ReadyProbe reports readiness; with a DB configured it pings it.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API to its collaborators.
type Options struct {
	Identity *identity.Service
	Auth     *auth.Service
	Creds    *ec2.Service
	Catalog  catalog.Store
	Ready    ReadyProbe
	Version  string

	// AdminSecret verifies operator HS256 bearer tokens. Empty disables
	// the admin path; every privileged call is then denied.
	AdminSecret string
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	identity    *identity.Service
	auth        *auth.Service
	creds       *ec2.Service
	catalog     catalog.Store
	ready       ReadyProbe
	version     string
	adminSecret string
}

func New(opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		identity:    opts.Identity,
		auth:        opts.Auth,
		creds:       opts.Creds,
		catalog:     opts.Catalog,
		ready:       opts.Ready,
		version:     opts.Version,
		adminSecret: opts.AdminSecret,
	}

	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v2.0/tokens", a.handleIssueToken)
	a.mux.HandleFunc("POST /v2.0/ec2tokens", a.handleIssueEC2Token)
	a.mux.HandleFunc("GET /v2.0/tokens/{id}", a.handleGetToken)
	a.mux.HandleFunc("DELETE /v2.0/tokens/{id}", a.handleDeleteToken)

	a.mux.HandleFunc("POST /v2.0/users", a.handleCreateUser)
	a.mux.HandleFunc("GET /v2.0/users", a.handleListUsers)
	a.mux.HandleFunc("GET /v2.0/users/{id}", a.handleGetUser)
	a.mux.HandleFunc("PUT /v2.0/users/{id}", a.handleUpdateUser)
	a.mux.HandleFunc("DELETE /v2.0/users/{id}", a.handleDeleteUser)
	a.mux.HandleFunc("GET /v2.0/users/{id}/tenants", a.handleUserTenants)

	a.mux.HandleFunc("POST /v2.0/tenants", a.handleCreateTenant)
	a.mux.HandleFunc("GET /v2.0/tenants", a.handleListTenants)
	a.mux.HandleFunc("GET /v2.0/tenants/{id}", a.handleGetTenant)
	a.mux.HandleFunc("PUT /v2.0/tenants/{id}", a.handleUpdateTenant)
	a.mux.HandleFunc("DELETE /v2.0/tenants/{id}", a.handleDeleteTenant)

	a.mux.HandleFunc("PUT /v2.0/tenants/{tenant_id}/users/{user_id}", a.handleAddMembership)
	a.mux.HandleFunc("DELETE /v2.0/tenants/{tenant_id}/users/{user_id}", a.handleRemoveMembership)
	a.mux.HandleFunc("GET /v2.0/tenants/{tenant_id}/users/{user_id}/roles", a.handleListGrantedRoles)
	a.mux.HandleFunc("PUT /v2.0/tenants/{tenant_id}/users/{user_id}/roles/{role_id}", a.handleGrantRole)
	a.mux.HandleFunc("DELETE /v2.0/tenants/{tenant_id}/users/{user_id}/roles/{role_id}", a.handleRevokeRole)

	a.mux.HandleFunc("POST /v2.0/roles", a.handleCreateRole)
	a.mux.HandleFunc("GET /v2.0/roles", a.handleListRoles)
	a.mux.HandleFunc("GET /v2.0/roles/{id}", a.handleGetRole)
	a.mux.HandleFunc("DELETE /v2.0/roles/{id}", a.handleDeleteRole)

	a.mux.HandleFunc("POST /v2.0/users/{id}/credentials", a.handleCreateCredential)
	a.mux.HandleFunc("GET /v2.0/users/{id}/credentials", a.handleListCredentials)
	a.mux.HandleFunc("GET /v2.0/users/{id}/credentials/{access}", a.handleGetCredential)
	a.mux.HandleFunc("DELETE /v2.0/users/{id}/credentials/{access}", a.handleDeleteCredential)

	a.mux.HandleFunc("POST /v2.0/services", a.handleCreateService)
	a.mux.HandleFunc("GET /v2.0/services", a.handleListServices)
	a.mux.HandleFunc("GET /v2.0/services/{id}", a.handleGetService)
	a.mux.HandleFunc("DELETE /v2.0/services/{id}", a.handleDeleteService)

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withCaller(h)
	h = withMaxBody(h, 1<<20)
	h = withSecurityHeaders(h)
	h = withRequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "keygate-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
