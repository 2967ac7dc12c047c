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

	"seiran.gg/internal/auth"
	"seiran.gg/internal/captcha"
	"seiran.gg/internal/config"
	"seiran.gg/internal/httpapi"
	"seiran.gg/internal/obs"
	"seiran.gg/internal/stats"
	"seiran.gg/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	obs.SetDebug(cfg.Debug)

	if cfg.PgDSN == "" {
		log.Fatal("missing PostgreSQL DSN: set pg_dsn or SEIRAN_PG_DSN")
	}
	db, err := sql.Open("pgx", cfg.PgDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	svc := auth.NewService(auth.NewPGStore(db), auth.NewCache(),
		auth.WithRegistration(cfg.Registration),
		auth.WithSlowGate(cfg.SlowGate),
		auth.WithPolicy(auth.Policy{
			DisallowedNames:     cfg.DisallowedNames,
			DisallowedPasswords: cfg.DisallowedPasswords,
		}),
	)

	tokens, err := auth.NewTokenCodec(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		log.Fatalf("session codec: %v", err)
	}

	api := httpapi.New(
		httpapi.ReadyProbe{DB: db},
		version,
		svc,
		tokens,
		stats.NewPGService(db),
		stream.New(),
		captcha.New(cfg.Captcha.Secret),
		httpapi.WithRateLimit(cfg.RateLimit.Burst, cfg.RateLimit.PerSecond),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting seiran-web %s on %s", version, srv.Addr)

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
