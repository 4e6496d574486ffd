package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate.org/internal/auth"
	"keygate.org/internal/catalog"
	"keygate.org/internal/ec2"
	"keygate.org/internal/identity"
	"keygate.org/internal/token"
)

const testAdminSecret = "test-admin-secret"

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	admin  string
	client *http.Client
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ident, err := identity.NewService(identity.NewMemoryStore(identity.DefaultHashParams))
	require.NoError(t, err)
	issuer, err := token.NewIssuer(token.NewMemoryStore())
	require.NoError(t, err)
	catStore := catalog.NewMemoryStore()
	resolver, err := catalog.NewResolver(catStore)
	require.NoError(t, err)
	creds, err := ec2.NewService(ec2.NewMemoryStore())
	require.NoError(t, err)
	authSvc, err := auth.NewService(ident, issuer, resolver, creds)
	require.NoError(t, err)

	api := New(Options{
		Identity:    ident,
		Auth:        authSvc,
		Creds:       creds,
		Catalog:     catStore,
		Version:     "test",
		AdminSecret: testAdminSecret,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	adminTok, err := AdminToken(testAdminSecret, "ops", time.Hour)
	require.NoError(t, err)

	return &testAPI{t: t, srv: srv, admin: adminTok, client: srv.Client()}
}

func (c *testAPI) do(method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, payload)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	resp.Body.Close()
	var decoded map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func (c *testAPI) asAdmin(method, path string, body any) (*http.Response, map[string]any) {
	return c.do(method, path, body, map[string]string{"Authorization": "Bearer " + c.admin})
}

// seed creates tenant t1 with member u1.
func (c *testAPI) seed(userID, password, tenantID string) {
	c.t.Helper()
	resp, _ := c.asAdmin(http.MethodPost, "/v2.0/tenants", map[string]any{"id": tenantID, "name": "tenant-" + tenantID})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)
	resp, _ = c.asAdmin(http.MethodPost, "/v2.0/users", map[string]any{"id": userID, "name": "user-" + userID, "password": password})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)
	resp, _ = c.asAdmin(http.MethodPut, "/v2.0/tenants/"+tenantID+"/users/"+userID, nil)
	require.Equal(c.t, http.StatusNoContent, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	c := newTestAPI(t)

	resp, body := c.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, body = c.do(http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestAdminGate(t *testing.T) {
	c := newTestAPI(t)

	resp, _ := c.do(http.MethodPost, "/v2.0/users", map[string]any{"name": "x", "password": "p"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	forged, err := AdminToken("wrong-secret", "ops", time.Hour)
	require.NoError(t, err)
	resp, _ = c.do(http.MethodPost, "/v2.0/users", map[string]any{"name": "x", "password": "p"},
		map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPasswordTokenFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")

	resp, _ := c.asAdmin(http.MethodPost, "/v2.0/services", map[string]any{
		"definition": map[string]any{
			"type":       "compute",
			"public_url": "https://cloud.example.com/$(tenant_id)s",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := c.do(http.MethodPost, "/v2.0/tokens",
		map[string]any{"user_id": "u1", "password": "hunter2", "tenant_id": "t1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tok := body["token"].(map[string]any)
	tokenID := tok["id"].(string)
	require.NotEmpty(t, tokenID)
	assert.Equal(t, "t1", tok["tenant"].(map[string]any)["id"])

	cat := body["catalog"].([]any)
	require.Len(t, cat, 1)
	assert.Equal(t, "https://cloud.example.com/t1", cat[0].(map[string]any)["public_url"])

	// Admin validates the token by id.
	resp, body = c.asAdmin(http.MethodGet, "/v2.0/tokens/"+tokenID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, tokenID, body["id"])

	// The bearer revokes its own token without admin rights.
	resp, _ = c.do(http.MethodDelete, "/v2.0/tokens/"+tokenID, nil,
		map[string]string{"X-Auth-Token": tokenID})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = c.asAdmin(http.MethodGet, "/v2.0/tokens/"+tokenID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthFailuresShareOneBody(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")

	resp1, body1 := c.do(http.MethodPost, "/v2.0/tokens",
		map[string]any{"user_id": "u1", "password": "wrong"}, nil)
	resp2, body2 := c.do(http.MethodPost, "/v2.0/tokens",
		map[string]any{"username": "no-such-user", "password": "wrong"}, nil)

	require.Equal(t, http.StatusUnauthorized, resp1.StatusCode)
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	assert.Equal(t, body1["error"], body2["error"])
}

func TestUsernameTokenFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")

	resp, body := c.do(http.MethodPost, "/v2.0/tokens",
		map[string]any{"username": "user-u1", "password": "hunter2"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := body["token"].(map[string]any)
	assert.Equal(t, "u1", tok["user"].(map[string]any)["id"])
	assert.Nil(t, tok["tenant"])
}

func TestEC2TokenFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")

	resp, body := c.asAdmin(http.MethodPost, "/v2.0/users/u1/credentials",
		map[string]any{"tenant_id": "t1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	access := body["access"].(string)
	secret := body["secret"].(string)

	req := ec2.Request{
		Access: access,
		Verb:   "GET",
		Host:   "api.example.com",
		Path:   "/",
		Params: map[string]string{"AWSAccessKeyId": access},
	}
	resp, body = c.do(http.MethodPost, "/v2.0/ec2tokens", map[string]any{
		"access":    access,
		"signature": ec2.Sign(secret, req),
		"verb":      req.Verb,
		"host":      req.Host,
		"path":      req.Path,
		"params":    req.Params,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok := body["token"].(map[string]any)
	assert.Equal(t, "t1", tok["tenant"].(map[string]any)["id"])

	// Bad signature is indistinguishable from a bad password.
	resp, _ = c.do(http.MethodPost, "/v2.0/ec2tokens", map[string]any{
		"access":    access,
		"signature": "forged",
		"verb":      req.Verb,
		"host":      req.Host,
		"path":      req.Path,
		"params":    req.Params,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoleGrantOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")

	resp, _ := c.asAdmin(http.MethodPost, "/v2.0/roles", map[string]any{"id": "r1", "name": "admin"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = c.asAdmin(http.MethodPut, "/v2.0/tenants/t1/users/u1/roles/r1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := c.asAdmin(http.MethodGet, "/v2.0/tenants/t1/users/u1/roles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []any{"r1"}, body["role_ids"])

	// Revoking twice trips the invalid-state rule.
	resp, _ = c.asAdmin(http.MethodDelete, "/v2.0/tenants/t1/users/u1/roles/r1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = c.asAdmin(http.MethodDelete, "/v2.0/tenants/t1/users/u1/roles/r1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")

	resp, _ := c.asAdmin(http.MethodGet, "/v2.0/users/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = c.asAdmin(http.MethodPost, "/v2.0/users",
		map[string]any{"id": "u1", "name": "user-u1", "password": "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = c.asAdmin(http.MethodPost, "/v2.0/users", map[string]any{"name": "", "password": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelfServiceAccess(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")
	c.seed("u2", "hunter2", "t2")

	resp, body := c.do(http.MethodPost, "/v2.0/tokens",
		map[string]any{"user_id": "u1", "password": "hunter2", "tenant_id": "t1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tokenID := body["token"].(map[string]any)["id"].(string)
	hdr := map[string]string{"X-Auth-Token": tokenID}

	resp, body = c.do(http.MethodGet, "/v2.0/users/u1", nil, hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", body["id"])
	// The password hash never leaves the store.
	_, leaked := body["password"]
	assert.False(t, leaked)

	resp, _ = c.do(http.MethodGet, "/v2.0/users/u2", nil, hdr)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = c.do(http.MethodGet, "/v2.0/users/u1/tenants", nil, hdr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tenants := body["tenants"].([]any)
	require.Len(t, tenants, 1)
	assert.Equal(t, "t1", tenants[0].(map[string]any)["id"])
}

func TestCredentialScoping(t *testing.T) {
	c := newTestAPI(t)
	c.seed("u1", "hunter2", "t1")
	c.seed("u2", "hunter2", "t2")

	resp, body := c.asAdmin(http.MethodPost, "/v2.0/users/u1/credentials",
		map[string]any{"tenant_id": "t1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	access := body["access"].(string)

	// A credential only resolves under its owner's path.
	resp, _ = c.asAdmin(http.MethodGet, "/v2.0/users/u2/credentials/"+access, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = c.asAdmin(http.MethodGet, "/v2.0/users/u1/credentials", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["credentials"].([]any), 1)

	// Unknown tenants cannot be pinned.
	resp, _ = c.asAdmin(http.MethodPost, "/v2.0/users/u1/credentials",
		map[string]any{"tenant_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
