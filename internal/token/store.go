package token

import "context"

// Store persists token snapshots. Implementations must be safe for
// concurrent use. Create returns ErrConflict when the id is already taken so
// the issuer can regenerate.
type Store interface {
	Create(ctx context.Context, tok Token) error
	Get(ctx context.Context, id string) (Token, error)
	Delete(ctx context.Context, id string) error
}
