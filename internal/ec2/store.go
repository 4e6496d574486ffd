package ec2

import "context"

// Store persists credentials keyed by access key. Implementations must be
// safe for concurrent use.
type Store interface {
	Create(ctx context.Context, cred Credential) error
	Get(ctx context.Context, access string) (Credential, error)
	ListByUser(ctx context.Context, userID string) ([]Credential, error)
	Delete(ctx context.Context, access string) error
}
