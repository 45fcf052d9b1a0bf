package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"paltransport.org/internal/audit"
	"paltransport.org/internal/identity"
	"paltransport.org/internal/obs"
	"paltransport.org/internal/token"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

type identityCtxKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(identity.Identity)
	return id, ok
}

// withAuth resolves a bearer token into an identity on the request
// context. It never rejects on its own: a missing or invalid token leaves
// the request anonymous and the endpoint decides whether that is enough.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.tokens == nil || a.resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		id, reason := a.authenticate(r.Context(), raw)
		if id == nil {
			obs.Warn("bearer token rejected", map[string]any{
				"reason":     reason,
				"path":       r.URL.Path,
				"client_ip":  clientIP(r),
				"request_id": audit.RequestIDFromContext(r.Context()),
			})
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// authenticate decodes an access token and binds it to a live account.
// Returns a nil identity plus the internal reason on any failure.
func (a *API) authenticate(ctx context.Context, raw string) (identity.Identity, string) {
	claims, err := a.tokens.Decode(raw)
	if err != nil {
		var de *token.DecodeError
		if errors.As(err, &de) {
			return nil, string(de.Reason)
		}
		return nil, "invalid"
	}
	if claims.TokenUse != string(token.KindAccess) {
		return nil, "wrong_token_use"
	}
	id, err := a.resolver.Resolve(ctx, claims.Subject)
	if err != nil {
		return nil, "unknown_principal"
	}
	if !id.Active() {
		return nil, "inactive_account"
	}
	if identity.NormalizeEmail(claims.Subject) != identity.NormalizeEmail(id.Principal()) {
		return nil, "principal_mismatch"
	}
	return id, ""
}

// requireIdentity fetches the authenticated identity or finishes the
// request with 401 and an UNAUTHORIZED_ACCESS event.
func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		a.record(r, audit.Event{
			Type:   audit.EventUnauthorizedAccess,
			Status: http.StatusUnauthorized,
		})
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return nil, false
	}
	return id, true
}

// requireRole additionally demands one of the given roles.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, roles ...identity.Role) (identity.Identity, bool) {
	id, ok := a.requireIdentity(w, r)
	if !ok {
		return nil, false
	}
	for _, role := range roles {
		if id.AccessRole() == role {
			return id, true
		}
	}
	a.record(r, audit.Event{
		Type:      audit.EventUnauthorizedAccess,
		Principal: id.Principal(),
		UserID:    id.ID(),
		Status:    http.StatusForbidden,
		Details:   map[string]any{"role": string(id.AccessRole())},
	})
	writeError(w, r, http.StatusForbidden, "forbidden", "insufficient privileges")
	return nil, false
}

// extractBearerToken requires the exact scheme prefix; anything else is
// treated as no token at all.
func extractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}
