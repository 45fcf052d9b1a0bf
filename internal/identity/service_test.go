package identity

import (
	"context"
	"errors"
	"testing"
)

func newTestService(t *testing.T) (*Service, *MemRegisteredStore, *MemProvisionalStore) {
	t.Helper()
	reg := NewMemRegisteredStore()
	prov := NewMemProvisionalStore()
	return NewService(reg, prov), reg, prov
}

func seedRegistered(t *testing.T, reg *MemRegisteredStore, email, password string, role Role) *RegisteredUser {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &RegisteredUser{
		UserID:       "u-" + email,
		Email:        email,
		FirstName:    "Seed",
		PasswordHash: hash,
		Role:         role,
		Provider:     ProviderEmail,
		Enabled:      true,
	}
	if err := reg.Create(context.Background(), u); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return u
}

func TestAuthenticate(t *testing.T) {
	svc, reg, _ := newTestService(t)
	seedRegistered(t, reg, "jo@example.com", "secret-pass", RoleUser)

	id, err := svc.Authenticate(context.Background(), " Jo@Example.com ", "secret-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.Principal() != "jo@example.com" {
		t.Fatalf("principal = %q", id.Principal())
	}

	stored, err := reg.FindByEmail(context.Background(), "jo@example.com")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.LastLoginAt.IsZero() {
		t.Fatal("last login not recorded")
	}
}

func TestAuthenticateFailuresCollapse(t *testing.T) {
	svc, reg, _ := newTestService(t)
	seedRegistered(t, reg, "jo@example.com", "secret-pass", RoleUser)

	locked := seedRegistered(t, reg, "locked@example.com", "secret-pass", RoleUser)
	locked.Locked = true
	if err := reg.Update(context.Background(), locked); err != nil {
		t.Fatalf("lock: %v", err)
	}

	oauthOnly := &RegisteredUser{
		UserID: "u-oauth", Email: "oauth@example.com",
		Role: RoleUser, Provider: ProviderGoogle, Enabled: true,
	}
	if err := reg.Create(context.Background(), oauthOnly); err != nil {
		t.Fatalf("seed oauth-only: %v", err)
	}

	cases := []struct {
		name, email, password string
	}{
		{"wrong password", "jo@example.com", "nope"},
		{"unknown email", "ghost@example.com", "secret-pass"},
		{"locked account", "locked@example.com", "secret-pass"},
		{"oauth-only account", "oauth@example.com", "anything"},
		{"empty password", "jo@example.com", ""},
		{"empty email", "", "secret-pass"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := svc.Authenticate(context.Background(), c.email, c.password); !errors.Is(err, ErrBadCredentials) {
				t.Fatalf("err = %v, want ErrBadCredentials", err)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	svc, reg, _ := newTestService(t)

	id, err := svc.Register(context.Background(), RegistrationInput{
		Email:     "New@Example.com",
		Password:  "long-enough",
		FirstName: "New",
		LastName:  "Person",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id.Principal() != "new@example.com" {
		t.Fatalf("principal = %q", id.Principal())
	}
	if id.AccessRole() != RoleUser {
		t.Fatalf("default role = %s", id.AccessRole())
	}

	stored, err := reg.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.PasswordHash == "" || stored.PasswordHash == "long-enough" {
		t.Fatal("password not hashed")
	}
	if err := VerifyPassword(stored.PasswordHash, "long-enough"); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, reg, _ := newTestService(t)
	seedRegistered(t, reg, "dup@example.com", "secret-pass", RoleUser)

	_, err := svc.Register(context.Background(), RegistrationInput{
		Email: "dup@example.com", Password: "long-enough", FirstName: "Dup",
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestRegisterAdminQuota(t *testing.T) {
	svc, _, _ := newTestService(t)

	for i, email := range []string{"a1@example.com", "a2@example.com"} {
		_, err := svc.Register(context.Background(), RegistrationInput{
			Email: email, Password: "long-enough", FirstName: "Admin", Role: RoleAdmin,
		})
		if err != nil {
			t.Fatalf("admin %d: %v", i+1, err)
		}
	}
	_, err := svc.Register(context.Background(), RegistrationInput{
		Email: "a3@example.com", Password: "long-enough", FirstName: "Admin", Role: RoleAdmin,
	})
	if !errors.Is(err, ErrAdminQuotaReached) {
		t.Fatalf("err = %v, want ErrAdminQuotaReached", err)
	}
}

func TestRegisterAbsorbsProvisional(t *testing.T) {
	svc, reg, prov := newTestService(t)
	if err := prov.Create(context.Background(), &ProvisionalUser{
		UserID: "p-1", Email: "fed@example.com",
		FirstName: "Fed", ProviderID: "g-1", PictureURL: "http://p/x.png",
		Enabled: true,
	}); err != nil {
		t.Fatalf("seed provisional: %v", err)
	}

	id, err := svc.Register(context.Background(), RegistrationInput{
		Email: "fed@example.com", Password: "long-enough", FirstName: "Fed",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	stored, err := reg.FindByEmail(context.Background(), "fed@example.com")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.ProviderID != "g-1" || stored.PictureURL != "http://p/x.png" {
		t.Fatalf("federation metadata lost: %+v", stored)
	}
	if stored.Provider != ProviderGoogle {
		t.Fatalf("provider = %s", stored.Provider)
	}
	if _, err := prov.FindByEmail(context.Background(), "fed@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("provisional not absorbed: %v", err)
	}
	if id.ID() == "p-1" {
		t.Fatal("registered account must get a fresh id")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := []RegistrationInput{
		{Email: "", Password: "long-enough", FirstName: "X"},
		{Email: "x@example.com", Password: "", FirstName: "X"},
		{Email: "x@example.com", Password: "long-enough", FirstName: ""},
		{Email: "x@example.com", Password: "long-enough", FirstName: "X", Role: "ROOT"},
	}
	for i, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	reg := NewMemRegisteredStore()
	prov := NewMemProvisionalStore()
	r := NewResolver(reg, prov)

	if err := prov.Create(context.Background(), &ProvisionalUser{
		UserID: "p-1", Email: "both@example.com", ProviderID: "g-1", Enabled: true,
	}); err != nil {
		t.Fatalf("seed provisional: %v", err)
	}

	id, err := r.Resolve(context.Background(), "both@example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.ID() != "p-1" {
		t.Fatalf("resolved %s, want provisional", id.ID())
	}

	if err := reg.Create(context.Background(), &RegisteredUser{
		UserID: "u-1", Email: "both@example.com", Role: RoleUser,
		Provider: ProviderEmail, Enabled: true,
	}); err != nil {
		t.Fatalf("seed registered: %v", err)
	}

	id, err = r.Resolve(context.Background(), "Both@Example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.ID() != "u-1" {
		t.Fatalf("resolved %s, registered must win", id.ID())
	}

	if _, err := r.Resolve(context.Background(), "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double miss = %v, want ErrNotFound", err)
	}
	if _, err := r.Resolve(context.Background(), "  "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank principal = %v, want ErrNotFound", err)
	}
}
