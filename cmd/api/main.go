package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"paltransport.org/internal/audit"
	"paltransport.org/internal/config"
	"paltransport.org/internal/httpapi"
	"paltransport.org/internal/identity"
	"paltransport.org/internal/oauth"
	"paltransport.org/internal/obs"
	"paltransport.org/internal/ratelimit"
	"paltransport.org/internal/token"
)

var version = "1.0.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		registered  identity.RegisteredStore
		provisional identity.ProvisionalStore
		auditStore  audit.Store
	)
	if db != nil {
		registered = identity.NewPGRegisteredStore(db)
		provisional = identity.NewPGProvisionalStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		// Without a DSN the service runs fully in memory (local development).
		registered = identity.NewMemRegisteredStore()
		provisional = identity.NewMemProvisionalStore()
		obs.Warn("no database configured, state is in-memory", nil)
	}

	tokens, err := token.NewService(cfg.JWT.Secret,
		token.WithIssuer(cfg.JWT.Issuer),
		token.WithAudience(cfg.JWT.Audience),
		token.WithAccessTTL(cfg.JWT.AccessTTL),
		token.WithRefreshTTL(cfg.JWT.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Limits{
		Login:   cfg.RateLimit.LoginRequests,
		OAuth:   cfg.RateLimit.OAuthRequests,
		Refresh: cfg.RateLimit.RefreshRequests,
		Write:   cfg.RateLimit.WriteRequests,
		Default: cfg.RateLimit.DefaultRequests,
		Window:  cfg.RateLimit.Window,
	})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Prune(10 * cfg.RateLimit.Window)
		}
	}()

	recorder := audit.NewRecorder(auditStore)

	api := httpapi.New(httpapi.Deps{
		Tokens:   tokens,
		Accounts: identity.NewService(registered, provisional),
		Resolver: identity.NewResolver(registered, provisional),
		OAuth: oauth.NewClient(oauth.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURI:  cfg.Google.RedirectURI,
			TokenURL:     cfg.Google.TokenURL,
			UserInfoURL:  cfg.Google.UserInfoURL,
			Timeout:      cfg.Google.Timeout,
		}),
		Federator: oauth.NewFederator(registered, provisional),
		Limiter:   limiter,
		Audit:     recorder,
		Ready:     httpapi.ReadyProbe{DB: db},
	}, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting pal-transport-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	recorder.Flush()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
