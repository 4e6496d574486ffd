package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"keygate.org/internal/auth"
	"keygate.org/internal/catalog"
	"keygate.org/internal/config"
	"keygate.org/internal/ec2"
	"keygate.org/internal/httpapi"
	"keygate.org/internal/identity"
	"keygate.org/internal/obs"
	"keygate.org/internal/token"
)

var (
	version = "0.3.0"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("KEYGATE_CONFIG"), "Path to TOML config")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	var identStore identity.Store
	var tokenStore token.Store
	var catalogStore catalog.Store
	var credStore ec2.Store

	if cfg.Database.DSN != "" {
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		identStore = identity.NewPGStore(db, cfg.HashParams())
		tokenStore = token.NewPGStore(db)
		catalogStore = catalog.NewPGStore(db)
		credStore = ec2.NewPGStore(db)
	} else {
		identStore = identity.NewMemoryStore(cfg.HashParams())
		tokenStore = token.NewMemoryStore()
		catalogStore = catalog.NewMemoryStore()
		credStore = ec2.NewMemoryStore()
	}

	ident, err := identity.NewService(identStore)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	issuer, err := token.NewIssuer(tokenStore, token.WithTTL(cfg.TokenTTL))
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	resolver, err := catalog.NewResolver(catalogStore)
	if err != nil {
		log.Fatalf("catalog resolver: %v", err)
	}
	creds, err := ec2.NewService(credStore)
	if err != nil {
		log.Fatalf("ec2 service: %v", err)
	}
	authSvc, err := auth.NewService(ident, issuer, resolver, creds)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Identity:    ident,
		Auth:        authSvc,
		Creds:       creds,
		Catalog:     catalogStore,
		Ready:       httpapi.ReadyProbe{DB: db},
		Version:     version,
		AdminSecret: cfg.Admin.Secret,
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting keygate-api %s on %s", version, srv.Addr)

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
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
