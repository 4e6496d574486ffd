package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"keygate.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the reference Store backend. A single mutex scopes every
// read-modify-write, which gives the transactional semantics the contract
// asks for without a database.
type MemoryStore struct {
	mu sync.RWMutex

	hash HashParams

	users       map[string]*memUser
	tenants     map[string]*Tenant
	roles       map[string]*Role
	memberships map[string]map[string]struct{} // userID -> tenantID set
	metadata    map[string]*Metadata           // userID + "\x00" + tenantID

	now func() time.Time
}

type memUser struct {
	User
	passwordHash string
}

func NewMemoryStore(hash HashParams) *MemoryStore {
	return &MemoryStore{
		hash:        hash.normalized(),
		users:       map[string]*memUser{},
		tenants:     map[string]*Tenant{},
		roles:       map[string]*Role{},
		memberships: map[string]map[string]struct{}{},
		metadata:    map[string]*Metadata{},
		now:         time.Now,
	}
}

func metadataKey(userID, tenantID string) string {
	return userID + "\x00" + tenantID
}

func cloneExtra(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Users ---------------------------------------------------------------------

func (s *MemoryStore) CreateUser(ctx context.Context, u User, password string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := s.users[u.ID]; ok {
		return User{}, fmt.Errorf("%w: user %s", ErrConflict, u.ID)
	}
	for _, existing := range s.users {
		if existing.Name == u.Name {
			return User{}, fmt.Errorf("%w: user name %s", ErrConflict, u.Name)
		}
	}
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.Extra = cloneExtra(u.Extra)
	s.users[u.ID] = &memUser{User: u, passwordHash: HashPassword(s.hash, u.ID, password)}
	return s.users[u.ID].snapshot(), nil
}

func (u *memUser) snapshot() User {
	out := u.User
	out.Extra = cloneExtra(u.Extra)
	return out
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u.snapshot(), nil
}

func (s *MemoryStore) GetUserByName(ctx context.Context, name string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Name == name {
			return u.snapshot(), nil
		}
	}
	return User{}, ErrNotFound
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Name != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Name == *upd.Name {
				return User{}, fmt.Errorf("%w: user name %s", ErrConflict, *upd.Name)
			}
		}
		u.Name = *upd.Name
	}
	if upd.Password != nil {
		u.passwordHash = HashPassword(s.hash, id, *upd.Password)
	}
	if upd.Extra != nil {
		if u.Extra == nil {
			u.Extra = map[string]any{}
		}
		for k, v := range upd.Extra {
			u.Extra[k] = v
		}
	}
	u.UpdatedAt = s.now().UTC()
	return u.snapshot(), nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	delete(s.memberships, id)
	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CheckPassword(ctx context.Context, userID, password string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		// Burn a hash anyway so a missing user costs the same as a mismatch.
		HashPassword(s.hash, userID, password)
		return ErrInvalidCredential
	}
	if !VerifyPassword(s.hash, userID, password, u.passwordHash) {
		return ErrInvalidCredential
	}
	return nil
}

// Tenants -------------------------------------------------------------------

func (s *MemoryStore) CreateTenant(ctx context.Context, t Tenant) (Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	if _, ok := s.tenants[t.ID]; ok {
		return Tenant{}, fmt.Errorf("%w: tenant %s", ErrConflict, t.ID)
	}
	for _, existing := range s.tenants {
		if existing.Name == t.Name {
			return Tenant{}, fmt.Errorf("%w: tenant name %s", ErrConflict, t.Name)
		}
	}
	now := s.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Extra = cloneExtra(t.Extra)
	stored := t
	s.tenants[t.ID] = &stored
	return t, nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, id string) (Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	out := *t
	out.Extra = cloneExtra(t.Extra)
	return out, nil
}

func (s *MemoryStore) GetTenantByName(ctx context.Context, name string) (Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Name == name {
			out := *t
			out.Extra = cloneExtra(t.Extra)
			return out, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (s *MemoryStore) UpdateTenant(ctx context.Context, id string, upd TenantUpdate) (Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	if upd.Name != nil {
		for otherID, other := range s.tenants {
			if otherID != id && other.Name == *upd.Name {
				return Tenant{}, fmt.Errorf("%w: tenant name %s", ErrConflict, *upd.Name)
			}
		}
		t.Name = *upd.Name
	}
	if upd.Extra != nil {
		if t.Extra == nil {
			t.Extra = map[string]any{}
		}
		for k, v := range upd.Extra {
			t.Extra[k] = v
		}
	}
	t.UpdatedAt = s.now().UTC()
	out := *t
	out.Extra = cloneExtra(t.Extra)
	return out, nil
}

func (s *MemoryStore) DeleteTenant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(s.tenants, id)
	for userID := range s.memberships {
		delete(s.memberships[userID], id)
	}
	return nil
}

func (s *MemoryStore) ListTenants(ctx context.Context) ([]Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		item := *t
		item.Extra = cloneExtra(t.Extra)
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Roles ---------------------------------------------------------------------

func (s *MemoryStore) CreateRole(ctx context.Context, r Role) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = ids.New()
	}
	if _, ok := s.roles[r.ID]; ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrConflict, r.ID)
	}
	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return Role{}, fmt.Errorf("%w: role name %s", ErrConflict, r.Name)
		}
	}
	stored := r
	s.roles[r.ID] = &stored
	return r, nil
}

func (s *MemoryStore) GetRole(ctx context.Context, id string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return *r, nil
}

func (s *MemoryStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *MemoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Memberships ---------------------------------------------------------------

func (s *MemoryStore) AddMembership(ctx context.Context, userID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if _, ok := s.tenants[tenantID]; !ok {
		return fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	if s.memberships[userID] == nil {
		s.memberships[userID] = map[string]struct{}{}
	}
	s.memberships[userID][tenantID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveMembership(ctx context.Context, userID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[userID][tenantID]; !ok {
		return ErrNotFound
	}
	delete(s.memberships[userID], tenantID)
	return nil
}

func (s *MemoryStore) TenantsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.memberships[userID]
	out := make([]string, 0, len(set))
	for tenantID := range set {
		out = append(out, tenantID)
	}
	sort.Strings(out)
	return out, nil
}

// Metadata ------------------------------------------------------------------

func (s *MemoryStore) GetMetadata(ctx context.Context, userID, tenantID string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.metadata[metadataKey(userID, tenantID)]
	if !ok {
		return Metadata{}, ErrNotFound
	}
	return md.clone(), nil
}

func (md *Metadata) clone() Metadata {
	out := *md
	out.Roles = md.Roles.Clone()
	out.Extra = cloneExtra(md.Extra)
	return out
}

func (s *MemoryStore) UpdateMetadata(ctx context.Context, userID, tenantID string, data map[string]any) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md := s.metadataLocked(userID, tenantID)
	for k, v := range data {
		md.Extra[k] = v
	}
	return md.clone(), nil
}

// metadataLocked returns the live record for the pair, creating it when
// absent. Callers must hold the write lock.
func (s *MemoryStore) metadataLocked(userID, tenantID string) *Metadata {
	key := metadataKey(userID, tenantID)
	md, ok := s.metadata[key]
	if !ok {
		md = &Metadata{
			UserID:   userID,
			TenantID: tenantID,
			Roles:    RoleSet{},
			Extra:    map[string]any{},
		}
		s.metadata[key] = md
	}
	return md
}

func (s *MemoryStore) DeleteMetadata(ctx context.Context, userID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metadataKey(userID, tenantID)
	if _, ok := s.metadata[key]; !ok {
		return ErrNotFound
	}
	delete(s.metadata, key)
	return nil
}

func (s *MemoryStore) GrantRole(ctx context.Context, userID, tenantID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadataLocked(userID, tenantID).Roles.Add(roleID)
	return nil
}

func (s *MemoryStore) RevokeRole(ctx context.Context, userID, tenantID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.metadata[metadataKey(userID, tenantID)]
	if !ok || !md.Roles.Remove(roleID) {
		return fmt.Errorf("%w: role %s not granted to user %s on tenant %s",
			ErrInvalidState, roleID, userID, tenantID)
	}
	return nil
}

func (s *MemoryStore) RolesFor(ctx context.Context, userID, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.metadata[metadataKey(userID, tenantID)]
	if !ok {
		return nil, nil
	}
	return md.Roles.List(), nil
}
