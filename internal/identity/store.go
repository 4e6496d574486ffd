package identity

import "context"

// Store is the persistence contract for users, tenants, roles, memberships
// and per-pair metadata. Implementations must be safe for concurrent use.
// Lookups by nonexistent key return ErrNotFound; duplicate unique keys on
// create return ErrConflict.
//
// Password material stays inside the store: lookups return stripped User
// records and CheckPassword is the only way to test a credential.
type Store interface {
	// CreateUser persists u with the supplied plaintext password hashed under
	// the store's hash parameters. An empty id is generated.
	CreateUser(ctx context.Context, u User, password string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByName(ctx context.Context, name string) (User, error)
	// UpdateUser merges the supplied fields into the existing record; keys in
	// Extra overwrite at the top level, unspecified fields are preserved.
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]User, error)
	// CheckPassword verifies the plaintext password for the user. A missing
	// user and a mismatched password both return ErrInvalidCredential so the
	// caller cannot tell the factors apart.
	CheckPassword(ctx context.Context, userID, password string) error

	CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
	GetTenant(ctx context.Context, id string) (Tenant, error)
	GetTenantByName(ctx context.Context, name string) (Tenant, error)
	UpdateTenant(ctx context.Context, id string, upd TenantUpdate) (Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
	ListTenants(ctx context.Context) ([]Tenant, error)

	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]Role, error)

	// AddMembership is idempotent: adding an existing pair is a no-op.
	AddMembership(ctx context.Context, userID, tenantID string) error
	RemoveMembership(ctx context.Context, userID, tenantID string) error
	TenantsForUser(ctx context.Context, userID string) ([]string, error)

	GetMetadata(ctx context.Context, userID, tenantID string) (Metadata, error)
	// UpdateMetadata merges data by key into the existing record, creating it
	// when absent. New keys overwrite old at the top level only.
	UpdateMetadata(ctx context.Context, userID, tenantID string, data map[string]any) (Metadata, error)
	DeleteMetadata(ctx context.Context, userID, tenantID string) error

	// GrantRole adds roleID to the pair's role set, creating the metadata
	// record when absent. The read-modify-write runs under the store's
	// single-update transaction so concurrent grants cannot drop each other.
	GrantRole(ctx context.Context, userID, tenantID, roleID string) error
	// RevokeRole removes roleID from the pair's role set. Revoking a role not
	// present returns ErrInvalidState.
	RevokeRole(ctx context.Context, userID, tenantID, roleID string) error
	RolesFor(ctx context.Context, userID, tenantID string) ([]string, error)
}

// UserUpdate carries the fields of a user update; nil means unchanged.
type UserUpdate struct {
	Name     *string
	Password *string
	Extra    map[string]any
}

// TenantUpdate carries the fields of a tenant update; nil means unchanged.
type TenantUpdate struct {
	Name  *string
	Extra map[string]any
}
