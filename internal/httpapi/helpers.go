package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"keygate.org/internal/auth"
	"keygate.org/internal/catalog"
	"keygate.org/internal/ec2"
	"keygate.org/internal/identity"
	"keygate.org/internal/token"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// invalidCredentialBody is the one body every authentication failure gets,
// whatever actually went wrong.
const invalidCredentialBody = "invalid credential"

// handleDomainError maps sentinel errors onto status codes. Anything
// unrecognized is a 500 with no detail leaked.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, identity.ErrInvalidState):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrConflict),
		errors.Is(err, catalog.ErrConflict),
		errors.Is(err, ec2.ErrConflict),
		errors.Is(err, token.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, ec2.ErrNotFound),
		errors.Is(err, token.ErrNotFound),
		errors.Is(err, token.ErrExpired):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrTenantNotAuthorized):
		writeError(w, r, http.StatusUnauthorized, invalidCredentialBody)
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "unauthorized")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// requireClaims runs the policy gate and writes the denial itself. The
// caller proceeds only on true.
func (a *API) requireClaims(w http.ResponseWriter, r *http.Request, required ...string) bool {
	rc, _ := auth.RequestFromContext(r.Context())
	decision := a.auth.Authorize(r.Context(), rc, required...)
	if !decision.Allowed {
		writeError(w, r, http.StatusForbidden, "unauthorized")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	const scheme = "Bearer "
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(scheme)) {
		return "", errors.New("invalid authorization scheme")
	}
	tok := strings.TrimSpace(header[len(scheme):])
	if tok == "" {
		return "", errors.New("missing bearer token")
	}
	return tok, nil
}
