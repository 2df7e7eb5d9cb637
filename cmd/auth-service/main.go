package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bus-fleet/internal/authsvc"
	"bus-fleet/migrations"
	"bus-fleet/pkg/auth"
	"bus-fleet/pkg/config"
	"bus-fleet/pkg/db"
	"bus-fleet/pkg/logger"
	"bus-fleet/pkg/ratelimit"
)

const (
	loginAttempts = 5
	loginRefill   = time.Minute
)

func main() {
	log := logger.NewLogger("auth-service")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Error("config_load_failed", err)
		os.Exit(1)
	}
	log = logger.NewLoggerWithLevel("auth-service", cfg.LogLevel)
	log.Info("service_start", "Auth service is starting")

	pool, err := db.NewConnection(ctx, cfg, log)
	if err != nil {
		log.Error("db_connect_failed", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool, log); err != nil {
		log.Error("migrations_failed", err)
		pool.Close()
		os.Exit(1)
	}

	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	svc := authsvc.NewService(authsvc.NewPGStore(pool), jwtMgr, log)

	limiter := ratelimit.New(loginRefill, loginAttempts)
	go limiter.Run(ctx)

	mux := http.NewServeMux()
	authsvc.NewHandler(svc, jwtMgr, limiter, log).RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.AuthPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithFields(logger.LogFields{"port": cfg.HTTP.AuthPort}).Info("http_listen", "Auth HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		log.Error("http_server_failed", err)
	case <-ctx.Done():
		log.Info("shutdown_start", "Shutdown signal received")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http_shutdown_failed", err)
	}
	log.Info("service_stop", "Auth service stopped")
}
