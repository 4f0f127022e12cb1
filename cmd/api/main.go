package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bloodsync.org/internal/auth"
	"bloodsync.org/internal/httpapi"
	"bloodsync.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("BLOODSYNC_AUTH_SECRET")
	if secret == "" {
		log.Fatal("BLOODSYNC_AUTH_SECRET is required")
	}

	opts := []auth.Option{
		auth.WithLockoutNotifier(func(string) { obs.ObserveLockout() }),
	}
	if v := os.Getenv("BLOODSYNC_LOCKOUT_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("invalid BLOODSYNC_LOCKOUT_THRESHOLD: %q", v)
		}
		opts = append(opts, auth.WithLockoutThreshold(n))
	}
	if v := os.Getenv("BLOODSYNC_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid BLOODSYNC_ACCESS_TTL: %q", v)
		}
		opts = append(opts, auth.WithAccessTTL(d))
	}
	if v := os.Getenv("BLOODSYNC_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid BLOODSYNC_REFRESH_TTL: %q", v)
		}
		opts = append(opts, auth.WithRefreshTTL(d))
	}

	var (
		directory auth.Directory
		sessStore auth.SessionStore
		probe     httpapi.ReadyProbe
		closeDB   = func() {}
	)
	if dsn := os.Getenv("BLOODSYNC_PG_DSN"); dsn != "" {
		pg, err := auth.OpenPG(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		directory = pg
		sessStore = pg
		probe = httpapi.ReadyProbe{DB: pg.DB()}
		closeDB = func() { _ = pg.Close() }
	} else {
		// In-memory store keeps local development free of Postgres. State
		// is lost on restart.
		log.Println("BLOODSYNC_PG_DSN not set, using in-memory store")
		mem := auth.NewMemoryStore()
		directory = mem
		sessStore = mem
	}

	sessions, err := auth.NewSessionService(directory, sessStore, secret, opts...)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}

	api := httpapi.New(probe, version, sessions)

	addr := os.Getenv("BLOODSYNC_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting bloodsync-api %s on %s", version, srv.Addr)

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
	closeDB()
	log.Println("Stopped")
}
