package identity

import (
	"encoding/json"
	"sort"
	"time"
)

// User is a principal that can authenticate. The password hash never leaves
// the store boundary; lookups return records with no credential material.
type User struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Tenant is an isolation scope a user can act within. Its lifecycle is
// independent from users; memberships and metadata reference it by id.
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Role is a flat named grant. No hierarchy.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Membership records that a user may act within a tenant. Existence of the
// pair is the whole payload.
type Membership struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
}

// Metadata holds the role set and extension data bound to a (user, tenant)
// pair. Created lazily on first role grant.
type Metadata struct {
	UserID   string         `json:"user_id"`
	TenantID string         `json:"tenant_id"`
	Roles    RoleSet        `json:"roles"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// RoleSet is a genuine set of role ids. It serializes as a sorted array so
// snapshots stay deterministic.
type RoleSet map[string]struct{}

func NewRoleSet(ids ...string) RoleSet {
	set := make(RoleSet, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func (s RoleSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s RoleSet) Add(id string) {
	s[id] = struct{}{}
}

// Remove deletes id from the set and reports whether it was present.
func (s RoleSet) Remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// List returns the role ids in sorted order.
func (s RoleSet) List() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set.
func (s RoleSet) Clone() RoleSet {
	out := make(RoleSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewRoleSet(ids...)
	return nil
}
