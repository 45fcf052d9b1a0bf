package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"paltransport.org/internal/identity"
)

const (
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Kind selects the lifetime and usage context of an issued token. Access
// and refresh tokens share one claim structure; refresh tokens are only
// accepted at the refresh endpoint.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalidToken is the single outward-facing decode failure. The precise
// reason stays server-side; use Reason to log it.
var ErrInvalidToken = errors.New("token: invalid token")

// Reason classifies a decode failure for server-side logging.
type Reason string

const (
	ReasonExpired      Reason = "expired"
	ReasonMalformed    Reason = "malformed"
	ReasonBadSignature Reason = "bad_signature"
	ReasonEmpty        Reason = "empty"
	ReasonUnsupported  Reason = "unsupported"
)

// DecodeError carries the internal failure reason. It unwraps to
// ErrInvalidToken, so callers matching with errors.Is never see more than
// the normalized condition.
type DecodeError struct {
	Reason Reason
	cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("token: invalid token (%s)", e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrInvalidToken }

// Claims is the fixed, versioned claim set embedded in every token.
// Unknown fields on decode are ignored, not rejected.
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Service issues and verifies self-contained HS256 bearer tokens. It keeps
// no server-side state: verification depends only on the shared secret and
// the clock.
type Service struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAudience overrides the aud claim.
func WithAudience(audience string) Option {
	return func(s *Service) {
		if audience != "" {
			s.audience = audience
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service with the shared signing secret.
func NewService(secret string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	s := &Service{
		secret:     []byte(secret),
		issuer:     "pal-transport",
		audience:   "pal-transport-users",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL reports the configured lifetime for the given kind.
func (s *Service) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

// Issue signs a token for the identity with the kind's TTL and returns the
// compact form together with its expiration.
func (s *Service) Issue(id identity.Identity, kind Kind) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.TTL(kind))
	claims := Claims{
		UserID:   id.ID(),
		Role:     string(id.AccessRole()),
		Provider: string(id.AuthProvider()),
		Name:     id.DisplayName(),
		TokenUse: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Principal(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

var errUnexpectedMethod = errors.New("unexpected signing method")

// Decode parses and validates a compact token. Every failure is a
// *DecodeError that unwraps to ErrInvalidToken.
func (s *Service) Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &DecodeError{Reason: ReasonEmpty}
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errUnexpectedMethod
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		return nil, &DecodeError{Reason: classify(err), cause: err}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, &DecodeError{Reason: ReasonMalformed}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, &DecodeError{Reason: ReasonMalformed}
	}
	return claims, nil
}

// Verify decodes the token and checks it belongs to the expected principal.
func (s *Service) Verify(raw, principal string) bool {
	claims, err := s.Decode(raw)
	if err != nil {
		return false
	}
	return identity.NormalizeEmail(claims.Subject) == identity.NormalizeEmail(principal)
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, errUnexpectedMethod):
		return ReasonUnsupported
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	default:
		return ReasonMalformed
	}
}
