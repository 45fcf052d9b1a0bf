package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paltransport.org/internal/ids"
	"paltransport.org/internal/obs"
)

// Administrator accounts are capped; the cap is part of the access model,
// not configuration.
const maxAdminAccounts = 2

// Service implements credential authentication and direct registration over
// the two identity stores.
type Service struct {
	registered  RegisteredStore
	provisional ProvisionalStore
	now         func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(registered RegisteredStore, provisional ProvisionalStore, opts ...ServiceOption) *Service {
	s := &Service{
		registered:  registered,
		provisional: provisional,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies email/password credentials against the registered
// store. Lookup misses, OAuth-only accounts and inactive accounts all
// collapse to ErrBadCredentials so callers cannot probe which emails exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}

	user, err := s.registered.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !user.Active() {
		return nil, ErrBadCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrBadCredentials
	}

	if err := s.registered.TouchLastLogin(ctx, user.UserID, s.now().UTC()); err != nil {
		obs.Warn("last login update failed", map[string]any{"user_id": user.UserID, "error": err.Error()})
	}
	return user, nil
}

// RegistrationInput carries the fields of a direct registration request.
type RegistrationInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Role        Role
}

// Register creates a registered account. A provisional account with the
// same email is absorbed: its federation metadata moves onto the new
// account and the provisional record is deleted, so the email keeps
// resolving to exactly one identity.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (Identity, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" || in.FirstName == "" {
		return nil, ErrInvalidInput
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if _, ok := ParseRole(string(role)); !ok {
		return nil, ErrInvalidInput
	}

	if role == RoleAdmin {
		admins, err := s.registered.CountByRole(ctx, RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("count admins: %w", err)
		}
		if admins >= maxAdminAccounts {
			return nil, ErrAdminQuotaReached
		}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &RegisteredUser{
		UserID:       ids.New(),
		Email:        email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: hash,
		Role:         role,
		Provider:     ProviderEmail,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Absorb a provisional account before the insert so the federation
	// metadata survives the upgrade.
	prov, provErr := s.provisional.FindByEmail(ctx, email)
	if provErr == nil {
		user.ProviderID = prov.ProviderID
		user.PictureURL = prov.PictureURL
		user.Provider = ProviderGoogle
	} else if !errors.Is(provErr, ErrNotFound) {
		return nil, provErr
	}

	if err := s.registered.Create(ctx, user); err != nil {
		return nil, err
	}

	if provErr == nil {
		if err := s.provisional.Delete(ctx, prov.UserID); err != nil {
			obs.Warn("provisional account cleanup failed", map[string]any{
				"email": email, "provisional_id": prov.UserID, "error": err.Error(),
			})
		} else {
			obs.Info("provisional account absorbed", map[string]any{
				"email": email, "user_id": user.UserID,
			})
		}
	}
	return user, nil
}
