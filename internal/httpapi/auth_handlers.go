package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"paltransport.org/internal/audit"
	"paltransport.org/internal/identity"
	"paltransport.org/internal/oauth"
	"paltransport.org/internal/obs"
	"paltransport.org/internal/token"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

// authResponse carries a fresh token pair plus the resolved user.
type authResponse struct {
	Token        string         `json:"token"`
	RefreshToken string         `json:"refreshToken"`
	User         map[string]any `json:"user"`
}

func (a *API) issuePair(w http.ResponseWriter, r *http.Request, id identity.Identity, code int) {
	access, _, err := a.tokens.Issue(id, token.KindAccess)
	if err != nil {
		obs.Error("token issue failed", map[string]any{"user_id": id.ID(), "error": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal", "token issue failed")
		return
	}
	refresh, _, err := a.tokens.Issue(id, token.KindRefresh)
	if err != nil {
		obs.Error("token issue failed", map[string]any{"user_id": id.ID(), "error": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal", "token issue failed")
		return
	}
	writeJSON(w, code, authResponse{
		Token:        access,
		RefreshToken: refresh,
		User:         userPayload(id),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrBadCredentials) {
			a.record(r, audit.Event{
				Type:      audit.EventLoginFailed,
				Principal: identity.NormalizeEmail(req.Email),
				Status:    http.StatusUnauthorized,
			})
			writeError(w, r, http.StatusUnauthorized, "bad_credentials", "invalid email or password")
			return
		}
		obs.Error("login failed", map[string]any{"error": err.Error()})
		writeError(w, r, http.StatusInternalServerError, "internal", "authentication error")
		return
	}

	a.record(r, audit.Event{
		Type:      audit.EventLoginSuccess,
		Principal: id.Principal(),
		UserID:    id.ID(),
		Status:    http.StatusOK,
	})
	a.issuePair(w, r, id, http.StatusOK)
}

func (a *API) handleGoogle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req googleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := a.federateGoogle(r, req.Code)
	if err != nil {
		a.record(r, audit.Event{
			Type:    audit.EventOAuthFailed,
			Status:  http.StatusBadRequest,
			Details: map[string]any{"reason": err.Error()},
		})
		writeError(w, r, http.StatusBadRequest, "oauth_failed", oauthFailureMessage(err))
		return
	}

	a.record(r, audit.Event{
		Type:      audit.EventOAuthSuccess,
		Principal: id.Principal(),
		UserID:    id.ID(),
		Status:    http.StatusOK,
	})
	a.issuePair(w, r, id, http.StatusOK)
}

// federateGoogle runs the full pipeline: exchange the code, fetch the
// profile, land it on a local identity.
func (a *API) federateGoogle(r *http.Request, code string) (identity.Identity, error) {
	ctx := r.Context()
	providerToken, err := a.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	profile, err := a.oauth.FetchProfile(ctx, providerToken)
	if err != nil {
		return nil, err
	}
	return a.federator.ResolveOrCreate(ctx, profile)
}

// oauthFailureMessage keeps provider detail when it is safe to show and
// falls back to a generic message otherwise.
func oauthFailureMessage(err error) string {
	var pe *oauth.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return "google authentication failed"
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	// The refresh token arrives as the bearer credential, not in a body.
	raw, ok := extractBearerToken(r.Header.Get(authHeader))
	if !ok {
		a.record(r, audit.Event{
			Type:    audit.EventTokenRefreshFailed,
			Status:  http.StatusUnauthorized,
			Details: map[string]any{"reason": "missing_token"},
		})
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
		return
	}

	id, reason := a.refreshIdentity(r, raw)
	if id == nil {
		a.record(r, audit.Event{
			Type:    audit.EventTokenRefreshFailed,
			Status:  http.StatusUnauthorized,
			Details: map[string]any{"reason": reason},
		})
		writeError(w, r, http.StatusUnauthorized, "invalid_token", "invalid refresh token")
		return
	}

	a.record(r, audit.Event{
		Type:      audit.EventTokenRefresh,
		Principal: id.Principal(),
		UserID:    id.ID(),
		Status:    http.StatusOK,
	})
	a.issuePair(w, r, id, http.StatusOK)
}

func (a *API) refreshIdentity(r *http.Request, raw string) (identity.Identity, string) {
	claims, err := a.tokens.Decode(raw)
	if err != nil {
		var de *token.DecodeError
		if errors.As(err, &de) {
			return nil, string(de.Reason)
		}
		return nil, "invalid"
	}
	if claims.TokenUse != string(token.KindRefresh) {
		return nil, "wrong_token_use"
	}
	id, err := a.resolver.Resolve(r.Context(), claims.Subject)
	if err != nil {
		return nil, "unknown_principal"
	}
	if !id.Active() {
		return nil, "inactive_account"
	}
	return id, ""
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	fields := map[string]string{}
	if identity.NormalizeEmail(req.Email) == "" {
		fields["email"] = "email is required"
	}
	if len(req.Password) < 8 {
		fields["password"] = "password must be at least 8 characters"
	}
	if strings.TrimSpace(req.FirstName) == "" {
		fields["firstName"] = "first name is required"
	}
	if len(fields) > 0 {
		writeValidationError(w, r, fields)
		return
	}

	id, err := a.accounts.Register(r.Context(), identity.RegistrationInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Role:        identity.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "conflict", "email is already registered")
		case errors.Is(err, identity.ErrAdminQuotaReached):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "administrator quota reached")
		case errors.Is(err, identity.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid registration data")
		default:
			obs.Error("registration failed", map[string]any{"error": err.Error()})
			writeError(w, r, http.StatusInternalServerError, "internal", "registration failed")
		}
		return
	}

	a.record(r, audit.Event{
		Type:      audit.EventUserRegistered,
		Principal: id.Principal(),
		UserID:    id.ID(),
		Status:    http.StatusCreated,
	})
	a.issuePair(w, r, id, http.StatusCreated)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	a.record(r, audit.Event{
		Type:      audit.EventUserInfoRequest,
		Principal: id.Principal(),
		UserID:    id.ID(),
		Status:    http.StatusOK,
	})
	writeJSON(w, http.StatusOK, userPayload(id))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	id, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	a.record(r, audit.Event{
		Type:      audit.EventLogout,
		Principal: id.Principal(),
		UserID:    id.ID(),
		Status:    http.StatusOK,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}
