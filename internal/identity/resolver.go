package identity

import (
	"context"
	"errors"
)

// Resolver unifies lookup across the two identity stores. Registered
// accounts always win: this is what lets a formal registration supersede an
// OAuth-only account with the same email.
type Resolver struct {
	registered  RegisteredStore
	provisional ProvisionalStore
}

// NewResolver builds a Resolver over the two stores.
func NewResolver(registered RegisteredStore, provisional ProvisionalStore) *Resolver {
	return &Resolver{registered: registered, provisional: provisional}
}

// Resolve looks the principal up in the registered store first and falls
// back to the provisional store. A double miss is ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, principal string) (Identity, error) {
	principal = NormalizeEmail(principal)
	if principal == "" {
		return nil, ErrNotFound
	}

	reg, err := r.registered.FindByEmail(ctx, principal)
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	prov, err := r.provisional.FindByEmail(ctx, principal)
	if err != nil {
		return nil, err
	}
	return prov, nil
}
