package httpapi

import (
	"net/http"
	"strings"

	"keygate.org/internal/audit"
	"keygate.org/internal/auth"
)

type createCredentialRequest struct {
	TenantID string `json:"tenant_id"`
}

func (a *API) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !a.requireClaims(w, r, auth.ClaimIsAdmin, auth.UserClaim(userID)) {
		return
	}
	var req createCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		writeError(w, r, http.StatusBadRequest, "tenant_id is required")
		return
	}
	// The tenant must exist before a credential can pin it.
	if _, err := a.identity.GetTenant(r.Context(), req.TenantID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	cred, err := a.creds.CreateCredential(r.Context(), userID, req.TenantID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "ec2.credential.created", map[string]any{
		"user_id":   userID,
		"tenant_id": req.TenantID,
		"access":    cred.Access,
	})
	w.Header().Set("Location", "/v2.0/users/"+userID+"/credentials/"+cred.Access)
	writeJSON(w, http.StatusCreated, cred)
}

func (a *API) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !a.requireClaims(w, r, auth.ClaimIsAdmin, auth.UserClaim(userID)) {
		return
	}
	creds, err := a.creds.ListCredentials(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

func (a *API) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !a.requireClaims(w, r, auth.ClaimIsAdmin, auth.UserClaim(userID)) {
		return
	}
	cred, err := a.creds.GetCredential(r.Context(), r.PathValue("access"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	// Credentials are scoped by the path: a foreign access key is absent,
	// not forbidden.
	if cred.UserID != userID {
		writeError(w, r, http.StatusNotFound, "credential not found")
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

func (a *API) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !a.requireClaims(w, r, auth.ClaimIsAdmin, auth.UserClaim(userID)) {
		return
	}
	access := r.PathValue("access")
	cred, err := a.creds.GetCredential(r.Context(), access)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if cred.UserID != userID {
		writeError(w, r, http.StatusNotFound, "credential not found")
		return
	}
	if err := a.creds.DeleteCredential(r.Context(), access); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "ec2.credential.deleted", map[string]any{
		"user_id": userID,
		"access":  access,
	})
	w.WriteHeader(http.StatusNoContent)
}
