package httpapi

import (
	"net/http"

	"keygate.org/internal/audit"
	"keygate.org/internal/auth"
	"keygate.org/internal/catalog"
)

type createServiceRequest struct {
	ID         string         `json:"id"`
	Definition map[string]any `json:"definition"`
}

func (a *API) handleCreateService(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	var req createServiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Definition) == 0 {
		writeError(w, r, http.StatusBadRequest, "definition is required")
		return
	}
	svc, err := a.catalog.Create(r.Context(), catalog.Service{
		ID:         req.ID,
		Definition: req.Definition,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "catalog.service.created", map[string]any{
		"service_id": svc.ID,
	})
	w.Header().Set("Location", "/v2.0/services/"+svc.ID)
	writeJSON(w, http.StatusCreated, svc)
}

func (a *API) handleListServices(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	services, err := a.catalog.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (a *API) handleGetService(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	svc, err := a.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (a *API) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	id := r.PathValue("id")
	if err := a.catalog.Delete(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "catalog.service.deleted", map[string]any{
		"service_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
