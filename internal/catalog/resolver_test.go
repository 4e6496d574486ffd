package catalog

import (
	"context"
	"errors"
	"testing"

	"keygate.org/internal/identity"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	seed := []Service{
		{ID: "svc-compute", Definition: map[string]any{
			"type":       "compute",
			"name":       "nova",
			"region":     "region-one",
			"public_url": "https://compute.example.com/v2/$(tenant_id)s",
		}},
		{ID: "svc-identity", Definition: map[string]any{
			"type":       "identity",
			"name":       "keygate",
			"public_url": "https://identity.example.com/v2.0",
		}},
	}
	for _, svc := range seed {
		if _, err := store.Create(ctx, svc); err != nil {
			t.Fatalf("seed service %s: %v", svc.ID, err)
		}
	}
	return store
}

func TestResolveExpandsTenantTemplate(t *testing.T) {
	resolver, err := NewResolver(seedStore(t))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	eps, err := resolver.Resolve(context.Background(), "u1", "t1", identity.Metadata{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected both services, got %+v", eps)
	}
	if eps[0].PublicURL != "https://compute.example.com/v2/t1" {
		t.Fatalf("tenant placeholder not expanded: %s", eps[0].PublicURL)
	}
	if eps[1].PublicURL != "https://identity.example.com/v2.0" {
		t.Fatalf("untemplated url must pass through: %s", eps[1].PublicURL)
	}
}

func TestResolveOmitsTenantScopedEntriesForUnscopedToken(t *testing.T) {
	resolver, err := NewResolver(seedStore(t))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	eps, err := resolver.Resolve(context.Background(), "u1", "", identity.Metadata{})
	if err != nil {
		t.Fatalf("Resolve must tolerate an absent tenant: %v", err)
	}
	if len(eps) != 1 || eps[0].ServiceID != "svc-identity" {
		t.Fatalf("expected only the tenant-agnostic entry, got %+v", eps)
	}
}

func TestResolveDeterministic(t *testing.T) {
	resolver, err := NewResolver(seedStore(t))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "u1", "t1", identity.Metadata{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := resolver.Resolve(ctx, "u1", "t1", identity.Metadata{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("catalog must be deterministic")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("catalog must be deterministic: %+v vs %+v", first[i], second[i])
		}
	}
}

func TestServiceCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	svc, err := store.Create(ctx, Service{Definition: map[string]any{"type": "volume"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if svc.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := store.Get(ctx, svc.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := store.Delete(ctx, svc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, svc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
