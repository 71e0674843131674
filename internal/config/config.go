package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=storefront port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	StoreDriver string // postgres, mysql or memory
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	LogLevel    string

	// empty RedisAddress keeps locks in-process
	RedisAddress string
	LockTTL      time.Duration

	PhoneRegion              string
	UnboundedAvailabilityCap int64
}

func Load() *Config {
	// a missing .env is fine, production reads the real env
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:                 getEnv("HTTP_PORT", "8080"),
		StoreDriver:              strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseDSN:              getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:                getEnv("JWT_SECRET", ""),
		CORSOrigins:              getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		RedisAddress:             getEnv("REDIS_ADDRESS", ""),
		LockTTL:                  getDuration("LOCK_TTL", 30*time.Second),
		PhoneRegion:              strings.ToUpper(getEnv("PHONE_REGION", "KZ")),
		UnboundedAvailabilityCap: getInt("UNBOUNDED_AVAILABILITY_CAP", 999),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters")
	}
	switch cfg.StoreDriver {
	case "postgres", "mysql", "memory":
	default:
		log.Fatalf("[FATAL] unknown STORE_DRIVER %q (postgres, mysql, memory)", cfg.StoreDriver)
	}
	if cfg.StoreDriver != "memory" && cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN uses the default value, set your own connection for production")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		log.Printf("[WARN] %s=%q is not a non-negative integer, using %d", key, v, def)
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[WARN] %s=%q is not a valid duration, using %s", key, v, def)
		return def
	}
	return d
}
