package httpapi

import (
	"net/http"

	"keygate.org/internal/audit"
	"keygate.org/internal/auth"
	"keygate.org/internal/identity"
)

type createUserRequest struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Password string         `json:"password"`
	Extra    map[string]any `json:"extra"`
}

type updateUserRequest struct {
	Name     *string        `json:"name"`
	Password *string        `json:"password"`
	Extra    map[string]any `json:"extra"`
}

type createTenantRequest struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Extra map[string]any `json:"extra"`
}

type updateTenantRequest struct {
	Name  *string        `json:"name"`
	Extra map[string]any `json:"extra"`
}

type createRoleRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.identity.CreateUser(r.Context(), identity.User{
		ID:    req.ID,
		Name:  req.Name,
		Extra: req.Extra,
	}, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.user.created", map[string]any{
		"user_id": user.ID,
		"name":    user.Name,
	})
	w.Header().Set("Location", "/v2.0/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	users, err := a.identity.ListUsers(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// A user may read its own record.
	if !a.requireClaims(w, r, auth.ClaimIsAdmin, auth.UserClaim(id)) {
		return
	}
	user, err := a.identity.GetUser(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.identity.UpdateUser(r.Context(), r.PathValue("id"), identity.UserUpdate{
		Name:     req.Name,
		Password: req.Password,
		Extra:    req.Extra,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.user.updated", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	id := r.PathValue("id")
	if err := a.identity.DeleteUser(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.user.deleted", map[string]any{
		"user_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserTenants(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireClaims(w, r, auth.ClaimIsAdmin, auth.UserClaim(id)) {
		return
	}
	tenants, err := a.identity.TenantsForUser(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (a *API) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tenant, err := a.identity.CreateTenant(r.Context(), identity.Tenant{
		ID:    req.ID,
		Name:  req.Name,
		Extra: req.Extra,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.tenant.created", map[string]any{
		"tenant_id": tenant.ID,
		"name":      tenant.Name,
	})
	w.Header().Set("Location", "/v2.0/tenants/"+tenant.ID)
	writeJSON(w, http.StatusCreated, tenant)
}

func (a *API) handleListTenants(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	tenants, err := a.identity.ListTenants(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (a *API) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.requireClaims(w, r, auth.ClaimIsAdmin, auth.TenantClaim(id)) {
		return
	}
	tenant, err := a.identity.GetTenant(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (a *API) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	var req updateTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tenant, err := a.identity.UpdateTenant(r.Context(), r.PathValue("id"), identity.TenantUpdate{
		Name:  req.Name,
		Extra: req.Extra,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.tenant.updated", map[string]any{
		"tenant_id": tenant.ID,
	})
	writeJSON(w, http.StatusOK, tenant)
}

func (a *API) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	id := r.PathValue("id")
	if err := a.identity.DeleteTenant(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.tenant.deleted", map[string]any{
		"tenant_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddMembership(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	tenantID, userID := r.PathValue("tenant_id"), r.PathValue("user_id")
	if err := a.identity.AddMembership(r.Context(), userID, tenantID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.membership.added", map[string]any{
		"user_id":   userID,
		"tenant_id": tenantID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRemoveMembership(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	tenantID, userID := r.PathValue("tenant_id"), r.PathValue("user_id")
	if err := a.identity.RemoveMembership(r.Context(), userID, tenantID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.membership.removed", map[string]any{
		"user_id":   userID,
		"tenant_id": tenantID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListGrantedRoles(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	roleIDs, err := a.identity.RolesFor(r.Context(), r.PathValue("user_id"), r.PathValue("tenant_id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role_ids": roleIDs})
}

func (a *API) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	tenantID, userID, roleID := r.PathValue("tenant_id"), r.PathValue("user_id"), r.PathValue("role_id")
	if err := a.identity.GrantRole(r.Context(), userID, tenantID, roleID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.role.granted", map[string]any{
		"user_id":   userID,
		"tenant_id": tenantID,
		"role_id":   roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	tenantID, userID, roleID := r.PathValue("tenant_id"), r.PathValue("user_id"), r.PathValue("role_id")
	if err := a.identity.RevokeRole(r.Context(), userID, tenantID, roleID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.role.revoked", map[string]any{
		"user_id":   userID,
		"tenant_id": tenantID,
		"role_id":   roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.identity.CreateRole(r.Context(), identity.Role{ID: req.ID, Name: req.Name})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.role.created", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", "/v2.0/roles/"+role.ID)
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	roles, err := a.identity.ListRoles(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	role, err := a.identity.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	id := r.PathValue("id")
	if err := a.identity.DeleteRole(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "identity.role.deleted", map[string]any{
		"role_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
