/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine API server: configuration,
  database, redis, dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Open the database and run migrations
  3. Connect redis when CACHE_URL is set
  4. Wire the token manager, services, and router
  5. Serve with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait up to 30s for active requests
  3. Exit

ENVIRONMENT:
  See config/config.go for the full variable list.

SEE ALSO:
  - api/server.go: router configuration
  - store/store.go: database setup and migrations
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kyuyo/payroll-engine/api"
	"github.com/kyuyo/payroll-engine/auth"
	"github.com/kyuyo/payroll-engine/config"
	"github.com/kyuyo/payroll-engine/store"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	var cache *redis.Client
	if cfg.CacheURL != "" {
		opts, err := redis.ParseURL(cfg.CacheURL)
		if err != nil {
			log.Fatal().Err(err).Msg("parse CACHE_URL")
		}
		cache = redis.NewClient(opts)
		if err := cache.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
	} else {
		log.Warn().Msg("CACHE_URL unset; refresh tokens and revocation disabled")
	}

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET unset; using an ephemeral development secret")
		cfg.JWTSecret = fmt.Sprintf("dev-%d", time.Now().UnixNano())
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cache)
	handler := api.NewHandler(st, tokens, cfg.FileStoragePath, log)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
