package ec2

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the reference credential backend.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: map[string]Credential{}, now: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[cred.Access]; ok {
		return ErrConflict
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = s.now().UTC()
	}
	s.creds[cred.Access] = cred
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, access string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[access]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Credential
	for _, cred := range s.creds {
		if cred.UserID == userID {
			out = append(out, cred)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Access < out[j].Access })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[access]; !ok {
		return ErrNotFound
	}
	delete(s.creds, access)
	return nil
}
