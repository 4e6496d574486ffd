// Package token mints and stores opaque bearer tokens. A token binds an
// immutable snapshot of the principal (user, tenant, metadata, expanded
// roles) captured at issuance; re-authentication always mints a fresh id.
package token

import (
	"errors"
	"time"

	"keygate.org/internal/identity"
)

var (
	ErrNotFound = errors.New("token not found")
	ErrExpired  = errors.New("token expired")
	ErrConflict = errors.New("token id collision")
)

// Token is an opaque credential artifact. Never mutated after creation.
type Token struct {
	ID        string            `json:"id"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	User      identity.User     `json:"user"`
	Tenant    *identity.Tenant  `json:"tenant,omitempty"`
	Metadata  identity.Metadata `json:"metadata"`
	Roles     []identity.Role   `json:"roles,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Expired reports whether the token has an expiry in the past relative to now.
// Tokens without an expiry never expire.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
