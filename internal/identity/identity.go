package identity

import (
	"strings"
	"time"
)

// Role is the fixed three-role access model.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleStaff Role = "STAFF"
	RoleUser  Role = "USER"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleStaff:
		return RoleStaff, true
	case RoleUser:
		return RoleUser, true
	}
	return "", false
}

// Provider identifies how an account authenticates.
type Provider string

const (
	ProviderEmail  Provider = "EMAIL"
	ProviderGoogle Provider = "GOOGLE"
)

// Identity is the capability set shared by both account variants. Handlers
// and the token service only ever see this interface; the concrete variant
// is an implementation detail of the stores.
type Identity interface {
	ID() string
	// Principal is the globally unique login name (the email).
	Principal() string
	DisplayName() string
	AccessRole() Role
	// Authorities lists the granted authority strings derived from the role.
	Authorities() []string
	AuthProvider() Provider
	ExternalID() string
	Picture() string
	// Active reports whether the account may authenticate at all.
	Active() bool
}

// RegisteredUser is an account created through direct registration. The
// password hash is empty when the account only ever authenticated via OAuth.
type RegisteredUser struct {
	UserID       string
	Email        string
	FirstName    string
	LastName     string
	PhoneNumber  string
	PasswordHash string
	Role         Role
	Provider     Provider
	ProviderID   string
	PictureURL   string
	Enabled      bool
	Locked       bool
	Expired      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  time.Time
}

func (u *RegisteredUser) ID() string             { return u.UserID }
func (u *RegisteredUser) Principal() string      { return u.Email }
func (u *RegisteredUser) DisplayName() string    { return joinName(u.FirstName, u.LastName) }
func (u *RegisteredUser) AccessRole() Role       { return u.Role }
func (u *RegisteredUser) Authorities() []string  { return []string{"ROLE_" + string(u.Role)} }
func (u *RegisteredUser) AuthProvider() Provider { return u.Provider }
func (u *RegisteredUser) ExternalID() string     { return u.ProviderID }
func (u *RegisteredUser) Picture() string        { return u.PictureURL }
func (u *RegisteredUser) Active() bool           { return u.Enabled && !u.Locked && !u.Expired }

// ProvisionalUser is an account created solely through OAuth federation.
// It has no password and is always a plain GOOGLE-provider USER; a later
// formal registration with the same email supersedes it.
type ProvisionalUser struct {
	UserID      string
	Email       string
	FirstName   string
	LastName    string
	ProviderID  string
	PictureURL  string
	Enabled     bool
	Locked      bool
	Expired     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
}

func (u *ProvisionalUser) ID() string             { return u.UserID }
func (u *ProvisionalUser) Principal() string      { return u.Email }
func (u *ProvisionalUser) DisplayName() string    { return joinName(u.FirstName, u.LastName) }
func (u *ProvisionalUser) AccessRole() Role       { return RoleUser }
func (u *ProvisionalUser) Authorities() []string  { return []string{"ROLE_" + string(RoleUser)} }
func (u *ProvisionalUser) AuthProvider() Provider { return ProviderGoogle }
func (u *ProvisionalUser) ExternalID() string     { return u.ProviderID }
func (u *ProvisionalUser) Picture() string        { return u.PictureURL }
func (u *ProvisionalUser) Active() bool           { return u.Enabled && !u.Locked && !u.Expired }

// SplitName breaks a full profile name on the first whitespace; the
// remainder stays joined in the last name.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	first = parts[0]
	if len(parts) == 2 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}

func joinName(first, last string) string {
	if last == "" {
		return first
	}
	return first + " " + last
}

// NormalizeEmail lower-cases and trims a principal for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
