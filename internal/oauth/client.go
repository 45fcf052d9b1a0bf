package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultTimeout     = 10 * time.Second

	// Provider calls are throttled so a burst of stuffed codes cannot
	// hammer the upstream endpoints.
	providerCallsPerSecond = 5
	providerCallBurst      = 10
)

// ErrProvider marks any failure talking to the OAuth provider. The
// provider-supplied message is preserved; provider tokens never are.
var ErrProvider = errors.New("oauth: provider error")

// ProviderError carries the operation and the provider's own message.
type ProviderError struct {
	Op      string
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("oauth: %s failed: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("oauth: %s failed with status %d", e.Op, e.Status)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

// Profile is the subset of the provider's userinfo response the federation
// pipeline needs.
type Profile struct {
	ProviderID string
	Email      string
	Name       string
	Picture    string
}

// Config holds the provider endpoints and client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	UserInfoURL  string
	Timeout      time.Duration
}

// Client exchanges authorization codes and fetches profiles from the
// external OAuth provider. All calls are bounded by the configured timeout
// and cancellable through the caller's context.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient constructs a Client with defaults for unset endpoints.
func NewClient(cfg Config) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(providerCallsPerSecond), providerCallBurst),
	}
}

// ExchangeCode trades an authorization code for a provider access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", &ProviderError{Op: "code exchange", Message: "authorization code is empty"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("oauth: code exchange throttled: %w", err)
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.cfg.RedirectURI},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("oauth: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth: token request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := decodeBody(resp.Body, &body); err != nil {
		return "", &ProviderError{Op: "code exchange", Status: resp.StatusCode, Message: "unreadable response"}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Op: "code exchange", Status: resp.StatusCode, Message: body.ErrorDescription}
	}
	if body.Error != "" {
		return "", &ProviderError{Op: "code exchange", Status: resp.StatusCode, Message: body.ErrorDescription}
	}
	if body.AccessToken == "" {
		return "", &ProviderError{Op: "code exchange", Status: resp.StatusCode, Message: "no access token in response"}
	}
	return body.AccessToken, nil
}

// FetchProfile loads the user's profile with the provider access token.
func (c *Client) FetchProfile(ctx context.Context, providerToken string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return Profile{}, fmt.Errorf("oauth: profile fetch throttled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("oauth: build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("oauth: userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, &ProviderError{Op: "profile fetch", Status: resp.StatusCode}
	}
	var body struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := decodeBody(resp.Body, &body); err != nil {
		return Profile{}, &ProviderError{Op: "profile fetch", Status: resp.StatusCode, Message: "unreadable response"}
	}
	if body.ID == "" || body.Email == "" {
		return Profile{}, &ProviderError{Op: "profile fetch", Status: resp.StatusCode, Message: "profile is missing id or email"}
	}
	return Profile{
		ProviderID: body.ID,
		Email:      body.Email,
		Name:       body.Name,
		Picture:    body.Picture,
	}, nil
}

func decodeBody(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
