package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"keygate.org/internal/auth"
	"keygate.org/internal/catalog"
	"keygate.org/internal/ec2"
	"keygate.org/internal/identity"
	"keygate.org/internal/token"
)

type issueTokenRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id"`
}

type issueEC2TokenRequest struct {
	Access    string            `json:"access"`
	Signature string            `json:"signature"`
	Verb      string            `json:"verb"`
	Host      string            `json:"host"`
	Path      string            `json:"path"`
	Params    map[string]string `json:"params"`
}

type authenticationResponse struct {
	Token   token.Token        `json:"token"`
	Catalog []catalog.Endpoint `json:"catalog"`
}

func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	userID := strings.TrimSpace(req.UserID)
	username := strings.TrimSpace(req.Username)
	switch {
	case userID == "" && username == "":
		writeError(w, r, http.StatusBadRequest, "user_id or username is required")
		return
	case userID != "" && username != "":
		writeError(w, r, http.StatusBadRequest, "user_id and username are mutually exclusive")
		return
	case username != "":
		user, err := a.identity.GetUserByName(r.Context(), username)
		if err != nil {
			// An unknown name reads the same as a bad password.
			if errors.Is(err, identity.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, invalidCredentialBody)
				return
			}
			handleDomainError(w, r, err)
			return
		}
		userID = user.ID
	}

	authn, err := a.auth.AuthenticatePassword(r.Context(), userID, req.Password, req.TenantID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authenticationResponse{
		Token:   authn.Token,
		Catalog: authn.Catalog,
	})
}

func (a *API) handleIssueEC2Token(w http.ResponseWriter, r *http.Request) {
	var req issueEC2TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Access) == "" {
		writeError(w, r, http.StatusBadRequest, "access is required")
		return
	}

	authn, err := a.auth.AuthenticateSigned(r.Context(), ec2.Request{
		Access:    req.Access,
		Signature: req.Signature,
		Verb:      req.Verb,
		Host:      req.Host,
		Path:      req.Path,
		Params:    req.Params,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authenticationResponse{
		Token:   authn.Token,
		Catalog: authn.Catalog,
	})
}

func (a *API) handleGetToken(w http.ResponseWriter, r *http.Request) {
	if !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	tok, err := a.auth.GetToken(r.Context(), r.PathValue("id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// A caller may always revoke the token it presented; everything else
	// is an admin operation.
	rc, _ := auth.RequestFromContext(r.Context())
	if rc.TokenID != id && !a.requireClaims(w, r, auth.ClaimIsAdmin) {
		return
	}
	if err := a.auth.DeleteToken(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
