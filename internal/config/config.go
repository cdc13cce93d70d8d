// Package config centralizes environment-driven configuration for the
// mutabaah-api service.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment names recognized by the service.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config carries every tunable for one service process.
type Config struct {
	Addr string
	Env  string

	PostgresDSN string

	// SessionSecret signs session tokens. Required in production.
	SessionSecret string

	PrayerBaseURL string
	QuranBaseURL  string

	S3Bucket    string
	S3Region    string
	S3PublicURL string

	CORSOrigins []string

	UpstreamTimeout time.Duration
}

// ErrMissingSecret is returned when a production deployment has no session secret.
var ErrMissingSecret = errors.New("config: MUTABAAH_SESSION_SECRET is required in production")

// Load builds a Config from the process environment. A .env file, if present,
// is loaded first as a development convenience; real deployments set the
// variables directly.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            getEnv("MUTABAAH_ADDR", ":8080"),
		Env:             strings.ToLower(getEnv("MUTABAAH_ENV", EnvDevelopment)),
		PostgresDSN:     os.Getenv("MUTABAAH_PG_DSN"),
		SessionSecret:   strings.TrimSpace(os.Getenv("MUTABAAH_SESSION_SECRET")),
		PrayerBaseURL:   getEnv("MUTABAAH_PRAYER_BASE_URL", "https://api.aladhan.com/v1"),
		QuranBaseURL:    getEnv("MUTABAAH_QURAN_BASE_URL", "https://equran.id/api/v2"),
		S3Bucket:        os.Getenv("MUTABAAH_S3_BUCKET"),
		S3Region:        getEnv("MUTABAAH_S3_REGION", "ap-southeast-1"),
		S3PublicURL:     os.Getenv("MUTABAAH_S3_PUBLIC_URL"),
		UpstreamTimeout: 12 * time.Second,
	}

	if raw := strings.TrimSpace(os.Getenv("MUTABAAH_CORS_ORIGINS")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	if cfg.IsProduction() && cfg.SessionSecret == "" {
		return Config{}, ErrMissingSecret
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production hardening.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
