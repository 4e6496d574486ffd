// Smoke-tests a running keygate-api: provisions a tenant, user and
// membership through the admin surface, authenticates, validates the
// minted token and revokes it. Exits non-zero on the first failure.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"keygate.org/internal/httpapi"
)

func main() {
	base := os.Getenv("KEYGATE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	secret := os.Getenv("KEYGATE_ADMIN_SECRET")
	if secret == "" {
		log.Fatal("KEYGATE_ADMIN_SECRET is required")
	}

	admin, err := httpapi.AdminToken(secret, "smoke", 10*time.Minute)
	if err != nil {
		log.Fatalf("mint admin token: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	suffix := rand.New(rand.NewSource(time.Now().UnixNano())).Int63()
	tenantID := fmt.Sprintf("smoke-tenant-%d", suffix)
	userID := fmt.Sprintf("smoke-user-%d", suffix)
	password := fmt.Sprintf("smoke-pw-%d", suffix)

	do := func(method, path string, body map[string]any, headers map[string]string, want int) map[string]any {
		var payload *bytes.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				log.Fatalf("%s %s: marshal: %v", method, path, err)
			}
			payload = bytes.NewReader(raw)
		} else {
			payload = bytes.NewReader(nil)
		}
		req, err := http.NewRequest(method, base+path, payload)
		if err != nil {
			log.Fatalf("%s %s: %v", method, path, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			log.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != want {
			log.Fatalf("%s %s: status %d, want %d", method, path, resp.StatusCode, want)
		}
		var decoded map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
		return decoded
	}
	asAdmin := map[string]string{"Authorization": "Bearer " + admin}

	do(http.MethodPost, "/v2.0/tenants",
		map[string]any{"id": tenantID, "name": tenantID}, asAdmin, http.StatusCreated)
	do(http.MethodPost, "/v2.0/users",
		map[string]any{"id": userID, "name": userID, "password": password}, asAdmin, http.StatusCreated)
	do(http.MethodPut, "/v2.0/tenants/"+tenantID+"/users/"+userID, nil, asAdmin, http.StatusNoContent)

	authn := do(http.MethodPost, "/v2.0/tokens",
		map[string]any{"user_id": userID, "password": password, "tenant_id": tenantID},
		nil, http.StatusOK)
	tok, ok := authn["token"].(map[string]any)
	if !ok {
		log.Fatal("token missing from authentication response")
	}
	tokenID, _ := tok["id"].(string)
	if tokenID == "" {
		log.Fatal("empty token id")
	}

	validated := do(http.MethodGet, "/v2.0/tokens/"+tokenID, nil, asAdmin, http.StatusOK)
	if validated["id"] != tokenID {
		log.Fatalf("validated token id mismatch: %v", validated["id"])
	}

	do(http.MethodDelete, "/v2.0/tokens/"+tokenID, nil,
		map[string]string{"X-Auth-Token": tokenID}, http.StatusNoContent)

	// Cleanup; the user was created for this run only.
	do(http.MethodDelete, "/v2.0/users/"+userID, nil, asAdmin, http.StatusNoContent)
	do(http.MethodDelete, "/v2.0/tenants/"+tenantID, nil, asAdmin, http.StatusNoContent)

	fmt.Println("smoke OK")
}
