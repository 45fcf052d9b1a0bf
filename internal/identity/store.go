package identity

import (
	"context"
	"time"
)

// RegisteredStore persists accounts created through direct registration.
// Create returns ErrAlreadyExists when the email is taken.
type RegisteredStore interface {
	Create(ctx context.Context, u *RegisteredUser) error
	FindByID(ctx context.Context, id string) (*RegisteredUser, error)
	FindByEmail(ctx context.Context, email string) (*RegisteredUser, error)
	Update(ctx context.Context, u *RegisteredUser) error
	CountByRole(ctx context.Context, role Role) (int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// ProvisionalStore persists accounts created through OAuth federation.
// Create returns ErrAlreadyExists when the email or provider id is taken.
type ProvisionalStore interface {
	Create(ctx context.Context, u *ProvisionalUser) error
	FindByEmail(ctx context.Context, email string) (*ProvisionalUser, error)
	FindByProviderID(ctx context.Context, providerID string) (*ProvisionalUser, error)
	Delete(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
