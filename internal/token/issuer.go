package token

import (
	"context"
	"errors"
	"time"

	"keygate.org/internal/identity"
	"keygate.org/internal/ids"
)

// Issuer mints opaque token ids and persists the bound snapshot. Ids come
// from a collision-resistant random source; a collision on create is retried
// once with a fresh id and then treated as fatal for the request.
type Issuer struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures Issuer behavior.
type Option func(*Issuer)

// WithTTL sets the token lifetime. Zero keeps tokens non-expiring.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

func NewIssuer(store Store, opts ...Option) (*Issuer, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	i := &Issuer{store: store, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue mints a token bound to the supplied snapshot. The inputs are copied
// into the token as-is; callers resolve and expand them beforehand.
func (i *Issuer) Issue(ctx context.Context, user identity.User, tenant *identity.Tenant, md identity.Metadata, roles []identity.Role) (Token, error) {
	now := i.now().UTC()
	tok := Token{
		User:      user,
		Tenant:    tenant,
		Metadata:  md,
		Roles:     roles,
		CreatedAt: now,
	}
	if i.ttl > 0 {
		expires := now.Add(i.ttl)
		tok.ExpiresAt = &expires
	}

	for attempt := 0; attempt < 2; attempt++ {
		tok.ID = ids.Opaque()
		err := i.store.Create(ctx, tok)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrConflict) {
			return Token{}, err
		}
	}
	return Token{}, ErrConflict
}

// Get returns the token for id, translating expiry into ErrExpired.
func (i *Issuer) Get(ctx context.Context, id string) (Token, error) {
	tok, err := i.store.Get(ctx, id)
	if err != nil {
		return Token{}, err
	}
	if tok.Expired(i.now().UTC()) {
		return Token{}, ErrExpired
	}
	return tok, nil
}

// Delete removes a single token record.
func (i *Issuer) Delete(ctx context.Context, id string) error {
	return i.store.Delete(ctx, id)
}
