package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(HashParams{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, KeyLength: 32})
}

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	created, err := store.CreateUser(ctx, User{ID: "u1", Name: "alice", Extra: map[string]any{"email": "alice@example.com"}}, "secret")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID != "u1" || created.Name != "alice" {
		t.Fatalf("unexpected user: %+v", created)
	}

	if _, err := store.CreateUser(ctx, User{Name: "alice"}, "other"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}

	byName, err := store.GetUserByName(ctx, "alice")
	if err != nil || byName.ID != "u1" {
		t.Fatalf("GetUserByName: %+v, %v", byName, err)
	}

	newName := "alice2"
	updated, err := store.UpdateUser(ctx, "u1", UserUpdate{
		Name:  &newName,
		Extra: map[string]any{"phone": "555"},
	})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Name != "alice2" {
		t.Fatalf("name not updated: %+v", updated)
	}
	// Merge is shallow: untouched keys survive, new keys land.
	if updated.Extra["email"] != "alice@example.com" || updated.Extra["phone"] != "555" {
		t.Fatalf("extra merge lost fields: %+v", updated.Extra)
	}

	if err := store.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := store.GetUser(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCheckPasswordCollapsesFactors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	if _, err := store.CreateUser(ctx, User{ID: "u1", Name: "alice"}, "correct"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := store.CheckPassword(ctx, "u1", "correct"); err != nil {
		t.Fatalf("expected password to verify: %v", err)
	}
	badPassword := store.CheckPassword(ctx, "u1", "wrong")
	missingUser := store.CheckPassword(ctx, "no-such-user", "correct")
	if !errors.Is(badPassword, ErrInvalidCredential) || !errors.Is(missingUser, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for both factors, got %v / %v", badPassword, missingUser)
	}
}

func TestMembershipIdempotentInsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	mustSeedPair(t, store)

	if err := store.AddMembership(ctx, "u1", "t1"); err != nil {
		t.Fatalf("AddMembership: %v", err)
	}
	// Re-adding the same pair is a no-op, not an error.
	if err := store.AddMembership(ctx, "u1", "t1"); err != nil {
		t.Fatalf("AddMembership second time: %v", err)
	}
	tenants, err := store.TenantsForUser(ctx, "u1")
	if err != nil || len(tenants) != 1 || tenants[0] != "t1" {
		t.Fatalf("TenantsForUser: %v, %v", tenants, err)
	}

	if err := store.RemoveMembership(ctx, "u1", "t1"); err != nil {
		t.Fatalf("RemoveMembership: %v", err)
	}
	if err := store.RemoveMembership(ctx, "u1", "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound removing absent membership, got %v", err)
	}

	if err := store.AddMembership(ctx, "ghost", "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestCreateRoleRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	if _, err := store.CreateRole(ctx, Role{ID: "r1", Name: "admin"}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := store.CreateRole(ctx, Role{ID: "r2", Name: "admin"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for reused role name, got %v", err)
	}
}

func TestGrantAndRevokeRoles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mustSeedPair(t, store)

	// Grant with no prior metadata creates the record lazily.
	if err := store.GrantRole(ctx, "u1", "t1", "r1"); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if err := store.GrantRole(ctx, "u1", "t1", "r1"); err != nil {
		t.Fatalf("GrantRole duplicate: %v", err)
	}
	roles, err := store.RolesFor(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("RolesFor: %v", err)
	}
	if len(roles) != 1 || roles[0] != "r1" {
		t.Fatalf("duplicate grant must collapse: %v", roles)
	}

	if err := store.RevokeRole(ctx, "u1", "t1", "r2"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState revoking absent role, got %v", err)
	}
	if err := store.RevokeRole(ctx, "u1", "t1", "r1"); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	roles, err = store.RolesFor(ctx, "u1", "t1")
	if err != nil || len(roles) != 0 {
		t.Fatalf("expected empty role set, got %v, %v", roles, err)
	}
	if err := store.RevokeRole(ctx, "u1", "t1", "r1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second revoke, got %v", err)
	}
}

func TestConcurrentGrantsDoNotDropWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mustSeedPair(t, store)

	grants := []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8"}
	var wg sync.WaitGroup
	for _, roleID := range grants {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := store.GrantRole(ctx, "u1", "t1", id); err != nil {
				t.Errorf("GrantRole(%s): %v", id, err)
			}
		}(roleID)
	}
	wg.Wait()

	roles, err := store.RolesFor(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("RolesFor: %v", err)
	}
	if len(roles) != len(grants) {
		t.Fatalf("lost update: want %d roles, got %v", len(grants), roles)
	}
}

func TestMetadataMergeByKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mustSeedPair(t, store)

	if _, err := store.UpdateMetadata(ctx, "u1", "t1", map[string]any{"quota": 10, "tier": "basic"}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	md, err := store.UpdateMetadata(ctx, "u1", "t1", map[string]any{"tier": "gold"})
	if err != nil {
		t.Fatalf("UpdateMetadata merge: %v", err)
	}
	if md.Extra["quota"] != 10 || md.Extra["tier"] != "gold" {
		t.Fatalf("unexpected merge result: %+v", md.Extra)
	}

	if err := store.DeleteMetadata(ctx, "u1", "t1"); err != nil {
		t.Fatalf("DeleteMetadata: %v", err)
	}
	if _, err := store.GetMetadata(ctx, "u1", "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func mustSeedPair(t *testing.T, store *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, User{ID: "u1", Name: "alice"}, "pw"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := store.CreateTenant(ctx, Tenant{ID: "t1", Name: "acme"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}
