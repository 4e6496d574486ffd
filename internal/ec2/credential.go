// Package ec2 implements access/secret credentials for signed-request
// authentication. A user may hold many credentials, each naming one tenant,
// because a signature alone cannot say which tenant a multi-tenant user is
// acting as.
package ec2

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("credential not found")
	ErrConflict = errors.New("credential conflict")
)

// Credential binds a generated access/secret pair to exactly one
// (user, tenant). Immutable after creation except by deletion.
type Credential struct {
	Access    string    `json:"access"`
	Secret    string    `json:"secret"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}
