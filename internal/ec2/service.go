package ec2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"keygate.org/internal/ids"
)

// Service manages the credential lifecycle. Verification of signed requests
// lives in the authenticator; this layer only owns CRUD.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("ec2 store is required")
	}
	return &Service{store: store}, nil
}

// CreateCredential generates a fresh access/secret pair bound to the
// (user, tenant) pair.
func (s *Service) CreateCredential(ctx context.Context, userID, tenantID string) (Credential, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return Credential{}, fmt.Errorf("user_id and tenant_id are required")
	}
	cred := Credential{
		Access:   ids.Opaque(),
		Secret:   ids.Opaque(),
		UserID:   userID,
		TenantID: tenantID,
	}
	if err := s.store.Create(ctx, cred); err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (s *Service) GetCredential(ctx context.Context, access string) (Credential, error) {
	access = strings.TrimSpace(access)
	if access == "" {
		return Credential{}, ErrNotFound
	}
	return s.store.Get(ctx, access)
}

func (s *Service) ListCredentials(ctx context.Context, userID string) ([]Credential, error) {
	return s.store.ListByUser(ctx, strings.TrimSpace(userID))
}

func (s *Service) DeleteCredential(ctx context.Context, access string) error {
	access = strings.TrimSpace(access)
	if access == "" {
		return ErrNotFound
	}
	return s.store.Delete(ctx, access)
}
