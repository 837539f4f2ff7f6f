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

	"orgauth.org/internal/config"
	"orgauth.org/internal/httpapi"
	"orgauth.org/internal/identity"
	"orgauth.org/internal/login"
	"orgauth.org/internal/obs"
	"orgauth.org/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("ORGAUTH_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
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
	if db == nil {
		log.Fatal("missing ORGAUTH_PG_DSN")
	}

	codec, err := token.NewCodec(token.Config{
		Secret: []byte(cfg.TokenSecret),
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	resolver, err := identity.NewResolver(identity.NewPGStore(db))
	if err != nil {
		log.Fatalf("identity resolver: %v", err)
	}

	discoveryCtx, cancelDiscovery := context.WithTimeout(context.Background(), 30*time.Second)
	provider, err := login.NewOIDCProvider(discoveryCtx, login.OIDCConfig{
		Issuer:       cfg.OIDCIssuer,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Scopes:       cfg.OIDCScopes,
	})
	cancelDiscovery()
	if err != nil {
		log.Fatalf("oidc provider: %v", err)
	}

	handshake, err := login.NewHandshake(provider, resolver, codec, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("login handshake: %v", err)
	}

	states, err := httpapi.NewStateCookie([]byte(cfg.TokenSecret), cfg.StateTTL)
	if err != nil {
		log.Fatalf("state cookie: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		ReadyProbe:        httpapi.ReadyProbe{DB: db},
		Version:           version,
		Codec:             codec,
		Handshake:         handshake,
		States:            states,
		ExemptPaths:       cfg.ExemptPaths,
		AuthRateBurst:     cfg.AuthRateBurst,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting orgauth-api %s on %s", version, srv.Addr)

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
	_ = db.Close()
	log.Println("Stopped")
}
