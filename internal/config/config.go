package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds every runtime setting for the service. Values come from the
// environment; defaults are suitable for local development only.
type Config struct {
	Addr        string `env:"PAL_HTTP_ADDR" envDefault:":8080"`
	DatabaseDSN string `env:"PAL_PG_DSN"`

	JWT       JWT       `envPrefix:"PAL_JWT_"`
	Google    Google    `envPrefix:"PAL_GOOGLE_"`
	RateLimit RateLimit `envPrefix:"PAL_RATELIMIT_"`
}

// JWT configures token issuance and verification.
type JWT struct {
	Secret     string        `env:"SECRET"`
	Issuer     string        `env:"ISSUER" envDefault:"pal-transport"`
	Audience   string        `env:"AUDIENCE" envDefault:"pal-transport-users"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"24h"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

// Google configures the OAuth federation client.
type Google struct {
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	RedirectURI  string        `env:"REDIRECT_URI" envDefault:"http://localhost:8081/auth/callback"`
	TokenURL     string        `env:"TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	UserInfoURL  string        `env:"USERINFO_URL" envDefault:"https://www.googleapis.com/oauth2/v2/userinfo"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// RateLimit configures the per-class token buckets. Requests is the bucket
// capacity; Window is the interval after which the bucket snaps back to full.
type RateLimit struct {
	LoginRequests   int           `env:"LOGIN_REQUESTS" envDefault:"5"`
	OAuthRequests   int           `env:"OAUTH_REQUESTS" envDefault:"10"`
	RefreshRequests int           `env:"REFRESH_REQUESTS" envDefault:"20"`
	WriteRequests   int           `env:"WRITE_REQUESTS" envDefault:"30"`
	DefaultRequests int           `env:"DEFAULT_REQUESTS" envDefault:"100"`
	Window          time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load parses the environment into a Config and validates required settings.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that have no sane default.
func (c Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("config: PAL_JWT_SECRET is required")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("config: rate limit window must be positive")
	}
	return nil
}
