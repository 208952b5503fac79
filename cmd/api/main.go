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
	"github.com/redis/go-redis/v9"

	"sptm.org/internal/auth"
	"sptm.org/internal/config"
	"sptm.org/internal/guard"
	"sptm.org/internal/httpapi"
	"sptm.org/internal/obs"
)

// Overridden at build time via -ldflags.
var (
	version = "0.1.0"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	cfg := config.Load()

	if cfg.TokenSecret == "" {
		log.Fatal("SPTM_AUTH_SECRET is required")
	}

	// Principal store: Postgres when a DSN is configured, in-memory otherwise.
	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(cfg.DBMaxOpenConnections)
		db.SetMaxIdleConns(cfg.DBMaxIdleConnections)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		store = auth.NewPGStore(db)
	} else {
		log.Print("SPTM_PG_DSN not set, using in-memory principal store")
		store = auth.NewMemoryStore()
	}

	// Guard state: Redis when configured, sharded in-process map otherwise.
	var (
		guardStore  guard.Store
		redisClient redis.UniversalClient
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		guardStore = guard.NewRedisStore(redisClient)
	} else {
		log.Print("SPTM_REDIS_ADDR not set, using in-memory guard store")
		guardStore = guard.NewMemoryStore()
	}

	tokens, err := auth.NewTokenService([]byte(cfg.TokenSecret), store,
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	engine, err := auth.NewEngine(store, tokens, guard.New(guardStore))
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	api := httpapi.New(engine, httpapi.ReadyProbe{DB: db, Redis: redisClient}, httpapi.Options{
		Version:       version,
		EdgeBurst:     cfg.EdgeRateLimitBurst,
		EdgePerSecond: cfg.EdgeRateLimitPerSec,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting sptm-auth %s on %s", version, srv.Addr)

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
	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Println("Stopped")
}
