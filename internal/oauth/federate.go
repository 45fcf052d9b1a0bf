package oauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paltransport.org/internal/identity"
	"paltransport.org/internal/ids"
	"paltransport.org/internal/obs"
)

// Federator maps a verified provider profile onto exactly one local
// identity. Concurrent federations of the same email serialize on a
// per-email lock; the store's uniqueness constraints back the lock up, and
// a lost race falls through to a fresh lookup.
type Federator struct {
	registered  identity.RegisteredStore
	provisional identity.ProvisionalStore
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*emailLock
}

// emailLock is reference counted so the entry can be dropped from the map
// once the last holder releases it.
type emailLock struct {
	mu   sync.Mutex
	refs int
}

// FederatorOption configures Federator behavior.
type FederatorOption func(*Federator)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) FederatorOption {
	return func(f *Federator) {
		if fn != nil {
			f.now = fn
		}
	}
}

// NewFederator constructs a Federator over the two identity stores.
func NewFederator(registered identity.RegisteredStore, provisional identity.ProvisionalStore, opts ...FederatorOption) *Federator {
	f := &Federator{
		registered:  registered,
		provisional: provisional,
		now:         time.Now,
		locks:       make(map[string]*emailLock),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Federator) lockEmail(email string) func() {
	f.mu.Lock()
	l := f.locks[email]
	if l == nil {
		l = &emailLock{}
		f.locks[email] = l
	}
	l.refs++
	f.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, email)
		}
		f.mu.Unlock()
	}
}

// ResolveOrCreate lands the profile on one of four outcomes: link the
// provider to an existing registered account, reuse an already linked
// registered account, reuse an existing provisional account, or create a
// new provisional account. Every outcome records the login time.
func (f *Federator) ResolveOrCreate(ctx context.Context, p Profile) (identity.Identity, error) {
	email := identity.NormalizeEmail(p.Email)
	if email == "" || p.ProviderID == "" {
		return nil, &ProviderError{Op: "federation", Message: "profile is missing id or email"}
	}

	unlock := f.lockEmail(email)
	defer unlock()

	id, err := f.resolve(ctx, email, p)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("oauth: federation lookup: %w", err)
	}

	created, err := f.createProvisional(ctx, email, p)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, identity.ErrAlreadyExists) {
		// Lost a race despite the email lock (another process or an
		// email/provider_id collision); the record exists now.
		id, lookupErr := f.resolve(ctx, email, p)
		if lookupErr == nil {
			return id, nil
		}
		return nil, fmt.Errorf("oauth: federation retry lookup: %w", lookupErr)
	}
	return nil, fmt.Errorf("oauth: federation create: %w", err)
}

// resolve covers the three reuse branches. Returns identity.ErrNotFound
// when no account exists for the profile.
func (f *Federator) resolve(ctx context.Context, email string, p Profile) (identity.Identity, error) {
	now := f.now().UTC()

	user, err := f.registered.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Provider != identity.ProviderGoogle || user.ProviderID == "" {
			user.Provider = identity.ProviderGoogle
			user.ProviderID = p.ProviderID
			if p.Picture != "" {
				user.PictureURL = p.Picture
			}
			user.UpdatedAt = now
			if err := f.registered.Update(ctx, user); err != nil {
				return nil, err
			}
			obs.Info("provider linked to registered account", map[string]any{
				"user_id": user.UserID,
			})
		}
		f.touchRegistered(ctx, user.UserID, now)
		return user, nil
	case !errors.Is(err, identity.ErrNotFound):
		return nil, err
	}

	prov, err := f.provisional.FindByProviderID(ctx, p.ProviderID)
	switch {
	case err == nil:
		f.touchProvisional(ctx, prov.UserID, now)
		return prov, nil
	case !errors.Is(err, identity.ErrNotFound):
		return nil, err
	}

	prov, err = f.provisional.FindByEmail(ctx, email)
	switch {
	case err == nil:
		f.touchProvisional(ctx, prov.UserID, now)
		return prov, nil
	case !errors.Is(err, identity.ErrNotFound):
		return nil, err
	}

	return nil, identity.ErrNotFound
}

func (f *Federator) createProvisional(ctx context.Context, email string, p Profile) (identity.Identity, error) {
	first, last := identity.SplitName(p.Name)
	now := f.now().UTC()
	prov := &identity.ProvisionalUser{
		UserID:      ids.New(),
		Email:       email,
		FirstName:   first,
		LastName:    last,
		ProviderID:  p.ProviderID,
		PictureURL:  p.Picture,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}
	if err := f.provisional.Create(ctx, prov); err != nil {
		return nil, err
	}
	obs.Info("provisional account created", map[string]any{"user_id": prov.UserID})
	return prov, nil
}

func (f *Federator) touchRegistered(ctx context.Context, id string, at time.Time) {
	if err := f.registered.TouchLastLogin(ctx, id, at); err != nil {
		obs.Warn("last login update failed", map[string]any{"user_id": id, "error": err.Error()})
	}
}

func (f *Federator) touchProvisional(ctx context.Context, id string, at time.Time) {
	if err := f.provisional.TouchLastLogin(ctx, id, at); err != nil {
		obs.Warn("last login update failed", map[string]any{"user_id": id, "error": err.Error()})
	}
}
