package catalog

import "context"

// Store persists service records. Implementations must be safe for
// concurrent use.
type Store interface {
	Create(ctx context.Context, svc Service) (Service, error)
	Get(ctx context.Context, id string) (Service, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Service, error)
}
