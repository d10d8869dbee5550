package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"auction-engine/utils"
)

// Config holds the application configuration
type Config struct {
	ServerPort    string
	RedisAddr     string
	RedisPassword string
	PostgresURL   string
	SweepInterval time.Duration
}

// LoadConfig loads the application configuration from environment variables.
// Empty REDIS_ADDR / POSTGRES_URL select the in-memory implementations,
// which keeps a single-process deployment runnable with no collaborators.
func LoadConfig() *Config {
	cfg := &Config{
		ServerPort:    os.Getenv("PORT"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		SweepInterval: 10 * time.Second,
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			utils.Warn("invalid SWEEP_INTERVAL, using default", map[string]any{
				"value":   raw,
				"default": cfg.SweepInterval.String(),
			})
		} else {
			cfg.SweepInterval = d
		}
	}

	return cfg
}

// InitRedis creates a Redis client and verifies connectivity
func InitRedis(cfg *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// InitPostgres opens a PostgreSQL connection and verifies connectivity
func InitPostgres(cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return db, nil
}
