// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides Redis connection settings shared by the cache,
// the search index mirror and the background job queue.
type RedisConfig interface {
	GetRedisURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// CacheConfig provides tunables for the lead query cache.
type CacheConfig interface {
	// GetCacheRealtimeWindow is the recency window for the updated_after
	// cache-bypass rule. Requests filtering on a timestamp this recent are
	// treated as real-time reads and skip the cache.
	GetCacheRealtimeWindow() time.Duration
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetOverdueSweepInterval() time.Duration
}

// SearchConfig provides settings for the lead search index mirror.
type SearchConfig interface {
	RedisConfig
	GetSearchIndexName() string
	GetSearchReindexBatchSize() int
}

// =============================================================================
// Config Implementation
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env string

	HTTPAddr      string
	CORSAllowAll  bool
	CORSOrigins   []string
	JWTAccess     string
	DatabaseURL   string
	RedisURL      string

	CacheRealtimeWindow time.Duration

	AsynqQueueName       string
	AsynqConcurrency     int
	OverdueSweepInterval time.Duration

	SearchIndexName        string
	SearchReindexBatchSize int
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:          getEnv("APP_ENV", "development"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll: getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:  splitCSV(getEnv("CORS_ORIGINS", "")),
		JWTAccess:    getEnv("JWT_ACCESS_SECRET", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		CacheRealtimeWindow: getEnvDuration("CACHE_REALTIME_WINDOW", 2*time.Minute),

		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     getEnvInt("ASYNQ_CONCURRENCY", 10),
		OverdueSweepInterval: getEnvDuration("OVERDUE_SWEEP_INTERVAL", 5*time.Minute),

		SearchIndexName:        getEnv("SEARCH_INDEX_NAME", "idx:leads"),
		SearchReindexBatchSize: getEnvInt("SEARCH_REINDEX_BATCH_SIZE", 500),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccess == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetRedisURL() string { return c.RedisURL }

func (c *Config) GetJWTAccessSecret() string { return c.JWTAccess }

func (c *Config) GetHTTPAddr() string { return c.HTTPAddr }

func (c *Config) GetCORSAllowAll() bool { return c.CORSAllowAll }

func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetCacheRealtimeWindow() time.Duration { return c.CacheRealtimeWindow }

func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }

func (c *Config) GetAsynqConcurrency() int { return c.AsynqConcurrency }

func (c *Config) GetOverdueSweepInterval() time.Duration { return c.OverdueSweepInterval }

func (c *Config) GetSearchIndexName() string { return c.SearchIndexName }

func (c *Config) GetSearchReindexBatchSize() int { return c.SearchReindexBatchSize }

// =============================================================================
// Env Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
