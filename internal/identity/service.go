package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service validates and normalizes input before it reaches the Store. Domain
// rules (uniqueness, set semantics, membership transactions) live in the
// store implementations; this layer only rejects malformed requests.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	return &Service{store: store}, nil
}

// Store exposes the underlying store for collaborators that orchestrate
// multi-entity flows, such as the authenticator.
func (s *Service) Store() Store {
	return s.store
}

func (s *Service) CreateUser(ctx context.Context, u User, password string) (User, error) {
	u.ID = strings.TrimSpace(u.ID)
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return User{}, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	if password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return s.store.CreateUser(ctx, u, password)
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

func (s *Service) GetUserByName(ctx context.Context, name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: user name is required", ErrInvalidInput)
	}
	return s.store.GetUserByName(ctx, name)
}

func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return User{}, fmt.Errorf("%w: user name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Password != nil && *upd.Password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return s.store.UpdateUser(ctx, id, upd)
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) CreateTenant(ctx context.Context, t Tenant) (Tenant, error) {
	t.ID = strings.TrimSpace(t.ID)
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return Tenant{}, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
	}
	return s.store.CreateTenant(ctx, t)
}

func (s *Service) GetTenant(ctx context.Context, id string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return s.store.GetTenant(ctx, id)
}

func (s *Service) GetTenantByName(ctx context.Context, name string) (Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
	}
	return s.store.GetTenantByName(ctx, name)
}

func (s *Service) UpdateTenant(ctx context.Context, id string, upd TenantUpdate) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Tenant{}, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	return s.store.UpdateTenant(ctx, id, upd)
}

func (s *Service) DeleteTenant(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return s.store.DeleteTenant(ctx, id)
}

func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	return s.store.ListTenants(ctx)
}

func (s *Service) CreateRole(ctx context.Context, r Role) (Role, error) {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, r)
}

func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, id)
}

func (s *Service) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, id)
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) AddMembership(ctx context.Context, userID, tenantID string) error {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return fmt.Errorf("%w: user_id and tenant_id are required", ErrInvalidInput)
	}
	return s.store.AddMembership(ctx, userID, tenantID)
}

func (s *Service) RemoveMembership(ctx context.Context, userID, tenantID string) error {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return fmt.Errorf("%w: user_id and tenant_id are required", ErrInvalidInput)
	}
	return s.store.RemoveMembership(ctx, userID, tenantID)
}

func (s *Service) TenantsForUser(ctx context.Context, userID string) ([]Tenant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	tenantIDs, err := s.store.TenantsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	tenants := make([]Tenant, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		t, err := s.store.GetTenant(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

func (s *Service) GrantRole(ctx context.Context, userID, tenantID, roleID string) error {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || tenantID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id, tenant_id and role_id are required", ErrInvalidInput)
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.store.GrantRole(ctx, userID, tenantID, roleID)
}

func (s *Service) RevokeRole(ctx context.Context, userID, tenantID, roleID string) error {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || tenantID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id, tenant_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RevokeRole(ctx, userID, tenantID, roleID)
}

func (s *Service) RolesFor(ctx context.Context, userID, tenantID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return nil, fmt.Errorf("%w: user_id and tenant_id are required", ErrInvalidInput)
	}
	return s.store.RolesFor(ctx, userID, tenantID)
}

func (s *Service) UpdateMetadata(ctx context.Context, userID, tenantID string, data map[string]any) (Metadata, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return Metadata{}, fmt.Errorf("%w: user_id and tenant_id are required", ErrInvalidInput)
	}
	return s.store.UpdateMetadata(ctx, userID, tenantID, data)
}
