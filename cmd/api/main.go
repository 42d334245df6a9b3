package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ainstein.io/internal/assistant"
	"ainstein.io/internal/auth"
	"ainstein.io/internal/httpapi"
	"ainstein.io/internal/mfa"
	"ainstein.io/internal/obs"
	"ainstein.io/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("AINSTEIN_PG_DSN")
	if dsn == "" {
		log.Fatal("AINSTEIN_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// MFA challenges live in Redis when one is configured, so codes
	// survive restarts and replicas share them. Memory otherwise.
	var challengeStore mfa.Store = mfa.NewMemStore()
	if addr := os.Getenv("AINSTEIN_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("AINSTEIN_REDIS_PASSWORD"),
		})
		challengeStore = mfa.NewRedisStore(client)
		defer client.Close()
	}

	authSvc := auth.NewService(store, mfa.NewService(challengeStore))

	var assistantSvc *assistant.Service
	if llm, err := assistant.NewClientFromEnv(); err == nil {
		assistantSvc = assistant.NewService(llm, store.Subscriptions(context.Background()), nil)
	} else {
		log.Printf("assistant disabled: %v", err)
	}

	api := httpapi.New(authSvc, assistantSvc, httpapi.ReadyProbe{DB: store.DB()}, version)

	addr := os.Getenv("AINSTEIN_HTTP_ADDR")
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

	log.Printf("Starting ainstein-api %s on %s", version, srv.Addr)

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
	log.Println("Stopped")
}
