/*
Package config loads runtime configuration from the environment.

PURPOSE:
  One place reads the environment and hands a typed Config to main.
  A .env file in the working directory is merged in first (godotenv),
  so local development needs no exported variables.

VARIABLES:
  DATABASE_URL              postgres:// DSN, or a sqlite path
  CACHE_URL                 redis:// DSN for the token store
  JWT_SECRET                HMAC signing key (required outside dev)
  ACCESS_TOKEN_TTL_MINUTES  access token lifetime (default 30)
  REFRESH_TOKEN_TTL_DAYS    refresh token lifetime (default 7)
  FILE_STORAGE_PATH         deduction certificate upload directory
  CORS_ORIGINS              comma-separated allowed origins
  PORT                      HTTP listen port (default 8080)
  LOG_LEVEL                 zerolog level name (default info)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the resolved runtime configuration.
type Config struct {
	DatabaseURL string
	CacheURL    string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	FileStoragePath string
	CORSOrigins     []string

	Port     int
	LogLevel zerolog.Level
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     getenv("DATABASE_URL", "payroll.db"),
		CacheURL:        getenv("CACHE_URL", ""),
		JWTSecret:       getenv("JWT_SECRET", ""),
		FileStoragePath: getenv("FILE_STORAGE_PATH", "./uploads"),
	}

	accessMins, err := getint("ACCESS_TOKEN_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.AccessTokenTTL = time.Duration(accessMins) * time.Minute

	refreshDays, err := getint("REFRESH_TOKEN_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTokenTTL = time.Duration(refreshDays) * 24 * time.Hour

	cfg.Port, err = getint("PORT", 8080)
	if err != nil {
		return nil, err
	}

	if origins := getenv("CORS_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	level, err := zerolog.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
