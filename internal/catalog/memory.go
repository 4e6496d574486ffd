package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"keygate.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the reference catalog backend.
type MemoryStore struct {
	mu       sync.RWMutex
	services map[string]Service
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{services: map[string]Service{}, now: time.Now}
}

func cloneDefinition(def map[string]any) map[string]any {
	if def == nil {
		return nil
	}
	out := make(map[string]any, len(def))
	for k, v := range def {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) Create(ctx context.Context, svc Service) (Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == "" {
		svc.ID = ids.New()
	}
	if _, ok := s.services[svc.ID]; ok {
		return Service{}, ErrConflict
	}
	svc.CreatedAt = s.now().UTC()
	svc.Definition = cloneDefinition(svc.Definition)
	s.services[svc.ID] = svc
	out := svc
	out.Definition = cloneDefinition(svc.Definition)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return Service{}, ErrNotFound
	}
	out := svc
	out.Definition = cloneDefinition(svc.Definition)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[id]; !ok {
		return ErrNotFound
	}
	delete(s.services, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Service, 0, len(s.services))
	for _, svc := range s.services {
		item := svc
		item.Definition = cloneDefinition(svc.Definition)
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
