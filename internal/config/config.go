// Package config collects environment configuration for the API process.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string
	// ChainRPC overrides the default RPC URL per chain name.
	ChainRPC map[string]string
}

// Load reads .env (when present) and the process environment. Every field
// has a local-development default.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:        getenv("PORT", "3000"),
		DatabaseURL: databaseURL(),
		RedisAddr:   redisAddr(),
		ChainRPC:    map[string]string{},
	}
	if url := os.Getenv("BASE_RPC_URL"); url != "" {
		cfg.ChainRPC["base"] = url
	}
	if url := os.Getenv("POLYGON_RPC_URL"); url != "" {
		cfg.ChainRPC["polygon"] = url
	}
	return cfg
}

// databaseURL honors a full DATABASE_URL (hosted Postgres) and falls back to
// composing one from DB_* parts for local development.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		getenv("DB_USER", "postgres"),
		getenv("DB_PASSWORD", "postgres"),
		getenv("DB_HOST", "localhost"),
		getenv("DB_PORT", "5432"),
		getenv("DB_NAME", "agent_services"),
	)
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getenv("REDIS_PORT", "6379")
	}
	return "127.0.0.1:6379"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
